// Package geo acquires a one-shot position fix for attendance submissions.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attendclient/internal/logging"
	"attendclient/internal/model"
)

// FailureMessage is shown whenever a fix cannot be obtained.
const FailureMessage = "Failed to get location. Please enable location services and try again."

// Code classifies a failed position request.
type Code int

const (
	PermissionDenied Code = iota + 1
	PositionUnavailable
	Timeout
	Unsupported
)

func (c Code) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is returned by Acquire and by providers.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "geo: " + e.Code.String() + ": " + e.Err.Error()
	}
	return "geo: " + e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the Code carried by err, or zero.
func ErrorCode(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

// Options mirror the knobs of a browser position request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is how old a previous fix may be and still be reused.
	// Zero always asks the provider for a new fix.
	MaximumAge time.Duration
}

// DefaultOptions asks for a fresh high-accuracy fix within five seconds.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, Timeout: 5 * time.Second}
}

// Provider produces a position fix.
type Provider interface {
	Position(ctx context.Context, opts Options) (model.Coordinates, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, opts Options) (model.Coordinates, error)

func (f ProviderFunc) Position(ctx context.Context, opts Options) (model.Coordinates, error) {
	return f(ctx, opts)
}

// Acquirer bounds each request by Options.Timeout and normalises failures to
// *Error. It holds no state beyond an optional cached fix.
type Acquirer struct {
	provider Provider
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	last   model.Coordinates
	lastAt time.Time
}

// NewAcquirer returns an Acquirer. A nil provider behaves as Unsupported.
func NewAcquirer(p Provider, opts Options, logger *slog.Logger) *Acquirer {
	if p == nil {
		p = UnsupportedProvider{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Acquirer{provider: p, opts: opts, logger: logging.OrDiscard(logger), now: time.Now}
}

// Options returns the options each request is made with.
func (a *Acquirer) Options() Options { return a.opts }

// Acquire requests one position fix.
func (a *Acquirer) Acquire(ctx context.Context) (model.Coordinates, error) {
	if a.opts.MaximumAge > 0 {
		a.mu.Lock()
		if !a.lastAt.IsZero() && a.now().Sub(a.lastAt) <= a.opts.MaximumAge {
			c := a.last
			a.mu.Unlock()
			return c, nil
		}
		a.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	coords, err := a.provider.Position(ctx, a.opts)
	if err != nil {
		gerr := classify(ctx, err)
		a.logger.Warn("location request failed", "code", gerr.Code.String(), "err", err)
		return model.Coordinates{}, gerr
	}

	a.mu.Lock()
	a.last, a.lastAt = coords, a.now()
	a.mu.Unlock()
	return coords, nil
}

func classify(ctx context.Context, err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Code: Timeout, Err: err}
	}
	return &Error{Code: PositionUnavailable, Err: err}
}
