package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/deskctl/internal/capture"
)

// X11Screenshotter captures the root window as PNG. The X connection is
// opened on first use so the server starts without a display.
type X11Screenshotter struct {
	mu       sync.Mutex
	capturer capture.Capturer
	connect  func() (capture.Capturer, error)
}

// NewX11Screenshotter creates a lazily connecting screenshotter
func NewX11Screenshotter() *X11Screenshotter {
	return &X11Screenshotter{
		connect: func() (capture.Capturer, error) {
			return capture.NewX11Capturer()
		},
	}
}

func (s *X11Screenshotter) get() (capture.Capturer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturer == nil {
		c, err := s.connect()
		if err != nil {
			return nil, err
		}
		s.capturer = c
	}
	return s.capturer, nil
}

// Screenshot captures the screen and encodes it, downscaled to maxWidth
func (s *X11Screenshotter) Screenshot(ctx context.Context, maxWidth int) ([]byte, error) {
	c, err := s.get()
	if err != nil {
		return nil, err
	}

	img, err := c.CaptureScreen(ctx)
	if err != nil {
		// drop the connection so the next call reconnects
		s.reset(c)
		return nil, fmt.Errorf("failed to capture screen with %s: %w", c.Name(), err)
	}
	return capture.EncodePNG(img, maxWidth)
}

func (s *X11Screenshotter) reset(c capture.Capturer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturer == c {
		_ = c.Close()
		s.capturer = nil
	}
}

// Close releases the X connection if one is open
func (s *X11Screenshotter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturer == nil {
		return nil
	}
	err := s.capturer.Close()
	s.capturer = nil
	return err
}
