package automation

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidButton(t *testing.T) {
	for in, want := range map[string]string{"": "left", "LEFT": "left", "right": "right", " middle ": "middle"} {
		got, err := ValidButton(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ValidButton("thumb")
	assert.Error(t, err)

	b, err := robotButton("middle")
	require.NoError(t, err)
	assert.Equal(t, "center", b)
}

func TestCommandRunner(t *testing.T) {
	r := NewCommandRunner(5 * time.Second)

	res, err := r.Run(context.Background(), "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)

	res, err = r.Run(context.Background(), "printf ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)
	assert.Zero(t, res.ExitCode)

	_, err = r.Run(context.Background(), "")
	assert.Error(t, err)
}

func TestCommandRunnerTimeout(t *testing.T) {
	r := NewCommandRunner(50 * time.Millisecond)
	_, err := r.Run(context.Background(), "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeCapturer struct {
	img    *image.RGBA
	err    error
	closed int
}

func (f *fakeCapturer) CaptureScreen(context.Context) (*image.RGBA, error) { return f.img, f.err }
func (f *fakeCapturer) CaptureRegion(context.Context, int, int, int, int) (*image.RGBA, error) {
	return f.img, f.err
}
func (f *fakeCapturer) Name() string { return "fake" }
func (f *fakeCapturer) Close() error {
	f.closed++
	return nil
}

func TestScreenshotterConnectsLazily(t *testing.T) {
	fake := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 8, 8))}
	connects := 0
	s := &X11Screenshotter{connect: func() (capture.Capturer, error) {
		connects++
		return fake, nil
	}}
	assert.Zero(t, connects)

	data, err := s.Screenshot(context.Background(), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = s.Screenshot(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 1, connects)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, fake.closed)
}

func TestScreenshotterResetsOnFailure(t *testing.T) {
	fake := &fakeCapturer{err: errors.New("bad drawable")}
	connects := 0
	s := &X11Screenshotter{connect: func() (capture.Capturer, error) {
		connects++
		return fake, nil
	}}

	_, err := s.Screenshot(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake")
	assert.Equal(t, 1, fake.closed)

	_, _ = s.Screenshot(context.Background(), 0)
	assert.Equal(t, 2, connects)
}

func TestScreenshotterConnectError(t *testing.T) {
	s := &X11Screenshotter{connect: func() (capture.Capturer, error) {
		return nil, errors.New("no display")
	}}
	_, err := s.Screenshot(context.Background(), 0)
	assert.EqualError(t, err, "no display")
}
