package window

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService       = "org.kde.KWin"
	windowsRunnerPath = "/WindowsRunner"
	krunnerInterface  = "org.kde.krunner1"
)

// krunnerMatch is one KRunner result.
// D-Bus signature: (sssida{sv}) - id, text, iconName, type, relevance, properties
type krunnerMatch struct {
	ID         string
	Text       string
	IconName   string
	Type       int32
	Relevance  float64
	Properties map[string]dbus.Variant
}

// KWinLister lists windows through KWin's KRunner windows plugin on the
// session bus, which also sees native Wayland clients
type KWinLister struct {
	timeout time.Duration
	match   func(ctx context.Context) ([]krunnerMatch, error)
}

// NewKWinLister creates a lister on the session bus. A non-positive
// timeout leaves the call bounded only by the caller's context.
func NewKWinLister(timeout time.Duration) *KWinLister {
	return &KWinLister{timeout: timeout, match: matchWindows}
}

// ListStubWindows returns one stub per titled match, in the order KWin
// reports them. Any failure yields an empty list.
func (l *KWinLister) ListStubWindows(ctx context.Context) []*element.Element {
	log := logger.WithComponent("window-kwin")
	stubs := []*element.Element{}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	matches, err := l.match(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("KWin windows runner unavailable")
		return stubs
	}

	for _, m := range matches {
		if m.Text == "" {
			continue
		}
		stubs = append(stubs, element.Stub(m.Text))
	}

	log.Debug().Int("matches", len(matches)).Int("windows", len(stubs)).Msg("Listed KWin windows")
	return stubs
}

// matchWindows asks the windows runner for every window: an empty query
// matches all of them
func matchWindows(ctx context.Context) ([]krunnerMatch, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	var matches []krunnerMatch
	obj := conn.Object(kwinService, windowsRunnerPath)
	if err := obj.CallWithContext(ctx, krunnerInterface+".Match", 0, "").Store(&matches); err != nil {
		return nil, fmt.Errorf("failed to call Match: %w", err)
	}
	return matches, nil
}
