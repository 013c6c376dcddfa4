package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// FileDevice serves the image stored at Path as every frame. It stands in for
// a camera on headless hosts and in tests.
type FileDevice struct {
	Path string
}

func (d FileDevice) Open(ctx context.Context) (Stream, error) {
	if err := checkSource(d.Path); err != nil {
		return nil, err
	}
	return &fileStream{path: d.Path}, nil
}

type fileStream struct {
	path string
}

func (s *fileStream) Frame(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", mapOSError(err)
	}
	return data, http.DetectContentType(data), nil
}

func (s *fileStream) Close() error { return nil }

// CommandDevice grabs each frame by running an external capture command, such
// as ffmpeg reading a v4l2 device, and reading one encoded image from its
// stdout. "{source}" in Command is replaced by Source.
type CommandDevice struct {
	Command string
	Source  string
}

func (d CommandDevice) Open(ctx context.Context) (Stream, error) {
	args := strings.Fields(strings.ReplaceAll(d.Command, "{source}", d.Source))
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty capture command", ErrNoDevice)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if strings.HasPrefix(d.Source, "/dev/") {
		if err := checkSource(d.Source); err != nil {
			return nil, err
		}
	}
	return &commandStream{args: args}, nil
}

type commandStream struct {
	args []string
}

func (s *commandStream) Frame(ctx context.Context) ([]byte, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, "", fmt.Errorf("capture command failed: %s", msg)
	}
	data := stdout.Bytes()
	if len(data) == 0 {
		return nil, "", ErrNoFrame
	}
	return data, http.DetectContentType(data), nil
}

func (s *commandStream) Close() error { return nil }

// Exclusive lets a single stream be open on the wrapped device at a time.
type Exclusive struct {
	Device Device

	mu   sync.Mutex
	open bool
}

// NewExclusive wraps dev.
func NewExclusive(dev Device) *Exclusive {
	return &Exclusive{Device: dev}
}

func (e *Exclusive) Open(ctx context.Context) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return nil, ErrDeviceBusy
	}
	s, err := e.Device.Open(ctx)
	if err != nil {
		return nil, err
	}
	e.open = true
	return &exclusiveStream{Stream: s, owner: e}, nil
}

type exclusiveStream struct {
	Stream
	owner *Exclusive
	once  sync.Once
}

func (s *exclusiveStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(func() {
		s.owner.mu.Lock()
		s.owner.open = false
		s.owner.mu.Unlock()
	})
	return err
}

func checkSource(path string) error {
	if path == "" {
		return ErrNoDevice
	}
	f, err := os.Open(path)
	if err != nil {
		return mapOSError(err)
	}
	return f.Close()
}

func mapOSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}
