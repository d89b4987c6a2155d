package automation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// CommandResult is the outcome of a shell command
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// CommandRunner runs shell commands with a deadline
type CommandRunner struct {
	shell   string
	timeout time.Duration
}

// NewCommandRunner creates a runner using /bin/sh. A non-positive
// timeout leaves commands bounded only by the caller's context.
func NewCommandRunner(timeout time.Duration) *CommandRunner {
	return &CommandRunner{shell: "sh", timeout: timeout}
}

// Run executes command through the shell. A non-zero exit status is
// reported in the result, not as an error.
func (r *CommandRunner) Run(ctx context.Context, command string) (CommandResult, error) {
	if command == "" {
		return CommandResult{}, fmt.Errorf("command must not be empty")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// background children may keep the pipes open after the shell is killed
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("command interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to run command: %w", err)
}
