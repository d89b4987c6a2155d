package window

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/logger"
)

// DefaultCommand lists managed windows as "<id> <desktop> <host> <title>"
var DefaultCommand = []string{"wmctrl", "-l"}

// Runner executes a command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FallbackLister lists windows from the window manager when the
// accessibility tree has nothing to offer. It only ever yields stub
// elements carrying a title.
type FallbackLister struct {
	command []string
	timeout time.Duration
	run     Runner
}

// NewFallbackLister creates a lister for the given command. An empty
// command selects DefaultCommand; a non-positive timeout disables it.
func NewFallbackLister(command []string, timeout time.Duration) *FallbackLister {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &FallbackLister{
		command: append([]string(nil), command...),
		timeout: timeout,
		run:     runCommand,
	}
}

// WithRunner replaces command execution, for tests
func (l *FallbackLister) WithRunner(run Runner) *FallbackLister {
	l.run = run
	return l
}

// ListStubWindows returns one stub per parsable output line, in output
// order. Any failure yields an empty list.
func (l *FallbackLister) ListStubWindows(ctx context.Context) []*element.Element {
	log := logger.WithComponent("window-fallback")

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	output, err := l.run(ctx, l.command[0], l.command[1:]...)
	if err != nil {
		log.Debug().
			Err(err).
			Strs("command", l.command).
			Msg("Window listing command failed")
		return []*element.Element{}
	}

	windows := ParseListing(output)
	log.Debug().Int("windows", len(windows)).Msg("Listed windows from window manager")
	return windows
}

// ParseListing converts wmctrl -l style output into stub windows. Lines
// with fewer than four whitespace-separated fields are skipped; the
// fourth field runs to the end of the line.
func ParseListing(output []byte) []*element.Element {
	windows := []*element.Element{}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		// wmctrl format: WindowID Desktop Hostname Title...
		fields := splitFieldsN(scanner.Text(), 4)
		if len(fields) < 4 {
			continue
		}
		windows = append(windows, element.Stub(strings.TrimSpace(fields[3])))
	}

	return windows
}

// splitFieldsN splits s around runs of whitespace into at most n fields.
// The last field holds the unsplit remainder of the line.
func splitFieldsN(s string, n int) []string {
	var fields []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for rest != "" {
		if len(fields) == n-1 {
			fields = append(fields, rest)
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			fields = append(fields, rest)
			break
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return fields
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}
