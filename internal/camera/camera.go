// Package camera exposes a capture device as a start/stop/capture widget.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"attendclient/internal/imagecodec"
	"attendclient/internal/logging"
)

// AccessMessage is shown when the device cannot be opened.
const AccessMessage = "Failed to access camera. Please check permissions and try again."

var (
	ErrNotActive        = errors.New("camera: not active")
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrNoDevice         = errors.New("camera: no capture device")
	ErrDeviceBusy       = errors.New("camera: device busy")
	ErrNoFrame          = errors.New("camera: no frame available")
)

// Device opens video streams. Implementations need not be safe for
// concurrent Open calls; wrap them in Exclusive for that.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open, video-only capture stream.
type Stream interface {
	// Frame returns the current frame as encoded image bytes and their
	// content type.
	Frame(ctx context.Context) ([]byte, string, error)
	// Close stops every track of the stream.
	Close() error
}

// Widget owns at most one open stream at a time.
type Widget struct {
	dev    Device
	logger *slog.Logger

	mu     sync.Mutex
	stream Stream
}

// NewWidget returns an inactive widget over dev.
func NewWidget(dev Device, logger *slog.Logger) *Widget {
	return &Widget{dev: dev, logger: logging.OrDiscard(logger)}
}

// Start opens a stream. Starting an active widget is a no-op. On failure the
// widget stays inactive and the device error is returned.
func (w *Widget) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream != nil {
		return nil
	}
	s, err := w.dev.Open(ctx)
	if err != nil {
		w.logger.Warn("camera start failed", "err", err)
		return fmt.Errorf("open camera: %w", err)
	}
	w.stream = s
	w.logger.Debug("camera started")
	return nil
}

// Stop closes the stream and marks the widget inactive. Stopping an inactive
// widget is a no-op.
func (w *Widget) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.release()
}

func (w *Widget) release() error {
	if w.stream == nil {
		return nil
	}
	err := w.stream.Close()
	w.stream = nil
	w.logger.Debug("camera stopped")
	return err
}

// IsActive reports whether a stream is open.
func (w *Widget) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream != nil
}

// Capture grabs a still from the current frame and returns it as a data URL.
func (w *Widget) Capture(ctx context.Context) (string, error) {
	w.mu.Lock()
	s := w.stream
	w.mu.Unlock()
	if s == nil {
		return "", ErrNotActive
	}
	data, contentType, err := s.Frame(ctx)
	if err != nil {
		return "", fmt.Errorf("capture frame: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoFrame
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return imagecodec.EncodeDataURL(data, contentType), nil
}

// Close releases any open stream. The widget may be started again afterwards.
func (w *Widget) Close() error {
	return w.Stop()
}

// IsAccessError reports whether err means the device could not be used at
// all, as opposed to a transient frame failure.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNoDevice) || errors.Is(err, ErrDeviceBusy)
}
