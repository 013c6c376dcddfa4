package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDevice struct {
	opens   atomic.Int32
	closes  atomic.Int32
	openErr error
	frame   []byte
}

func (d *countingDevice) Open(ctx context.Context) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opens.Add(1)
	return &countingStream{dev: d}, nil
}

type countingStream struct {
	dev *countingDevice
}

func (s *countingStream) Frame(ctx context.Context) ([]byte, string, error) {
	return s.dev.frame, "image/jpeg", nil
}

func (s *countingStream) Close() error {
	s.dev.closes.Add(1)
	return nil
}

func TestWidgetStartIsIdempotent(t *testing.T) {
	dev := &countingDevice{frame: []byte{0xff, 0xd8, 0xff}}
	w := NewWidget(dev, nil)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))

	assert.True(t, w.IsActive())
	assert.EqualValues(t, 1, dev.opens.Load())
}

func TestWidgetStopReleasesStream(t *testing.T) {
	dev := &countingDevice{frame: []byte{0xff}}
	w := NewWidget(dev, nil)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	assert.False(t, w.IsActive())
	assert.EqualValues(t, 1, dev.closes.Load())
}

func TestWidgetCloseReleasesStream(t *testing.T) {
	dev := &countingDevice{frame: []byte{0xff}}
	w := NewWidget(dev, nil)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())

	assert.False(t, w.IsActive())
	assert.Equal(t, dev.opens.Load(), dev.closes.Load())
}

func TestWidgetStartFailureStaysInactive(t *testing.T) {
	dev := &countingDevice{openErr: ErrPermissionDenied}
	w := NewWidget(dev, nil)

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, IsAccessError(err))
	assert.False(t, w.IsActive())
}

func TestWidgetCapture(t *testing.T) {
	dev := &countingDevice{frame: []byte("frame")}
	w := NewWidget(dev, nil)

	_, err := w.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)

	require.NoError(t, w.Start(context.Background()))
	url, err := w.Capture(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
}

func TestWidgetCaptureEmptyFrame(t *testing.T) {
	w := NewWidget(&countingDevice{}, nil)
	require.NoError(t, w.Start(context.Background()))

	_, err := w.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestExclusiveRejectsSecondStream(t *testing.T) {
	dev := NewExclusive(&countingDevice{frame: []byte{1}})

	first, err := dev.Open(context.Background())
	require.NoError(t, err)

	_, err = dev.Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := dev.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFileDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'}, 0o600))

	w := NewWidget(FileDevice{Path: path}, nil)
	require.NoError(t, w.Start(context.Background()))
	url, err := w.Capture(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	missing := NewWidget(FileDevice{Path: filepath.Join(dir, "nope.jpg")}, nil)
	err = missing.Start(context.Background())
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestCommandDeviceMissingBinary(t *testing.T) {
	dev := CommandDevice{Command: "definitely-not-a-capture-tool {source}", Source: "x"}
	_, err := dev.Open(context.Background())
	assert.ErrorIs(t, err, ErrNoDevice)
}
