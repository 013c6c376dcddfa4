// Package app assembles the client from configuration. Both binaries start
// from New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"attendclient/internal/apiclient"
	"attendclient/internal/attendance"
	"attendclient/internal/auth"
	"attendclient/internal/camera"
	"attendclient/internal/config"
	"attendclient/internal/geo"
	"attendclient/internal/journal"
	"attendclient/internal/logging"
	"attendclient/internal/metrics"
	"attendclient/internal/queue"
	"attendclient/internal/store"
)

// App holds the wired components.
type App struct {
	Config     config.App
	Logger     *slog.Logger
	API        *apiclient.Client
	Auth       *auth.Store
	Locator    *geo.Acquirer
	Camera     *camera.Widget
	Journal    *journal.Repository
	Events     queue.Queue
	Metrics    *metrics.Recorder
	Controller *attendance.Controller

	db    *store.DB
	redis *store.Redis
}

// New wires the client. A journal database that cannot be opened is
// logged and left out; everything else is required.
func New(ctx context.Context, cfg config.App, reg prometheus.Registerer, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logging.OrDiscard(logger), Metrics: metrics.New(reg)}

	if needsRedis(cfg) {
		a.redis = store.NewRedis(cfg.RedisAddr)
	}

	db, err := store.OpenDB(ctx, cfg.JournalDSN)
	if err != nil {
		a.Logger.Warn("journal database not reachable, submissions will not be journaled", "err", err)
	} else {
		a.db = db
		a.Journal = journal.NewRepository(db.Client)
		if err := a.Journal.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		if cfg.JournalKeep > 0 {
			n, err := a.Journal.Prune(ctx, time.Now().Add(-cfg.JournalKeep))
			if err != nil {
				a.Logger.Warn("journal prune failed", "err", err)
			} else if n > 0 {
				a.Logger.Info("journal pruned", "removed", n)
			}
		}
	}

	kv, err := a.stateStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Auth = auth.NewStore(kv, a.Logger)

	a.API = apiclient.New(cfg.APIBaseURL, cfg.APITimeout,
		apiclient.WithLogger(a.Logger.With("component", "api")),
		apiclient.WithUnauthorizedHook(a.Auth.ClearOnUnauthorized()),
	)
	if st, err := a.Auth.Load(ctx); err == nil && st.Token != "" {
		a.API.SetToken(st.Token)
	}

	provider, err := geo.NewProvider(geo.Settings{
		Kind:      cfg.GeoProvider,
		Latitude:  cfg.GeoLatitude,
		Longitude: cfg.GeoLongitude,
		Accuracy:  cfg.GeoAccuracy,
		LookupURL: cfg.GeoLookupURL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Locator = geo.NewAcquirer(provider, geo.Options{
		HighAccuracy: cfg.GeoHighAccuracy,
		Timeout:      cfg.GeoTimeout,
	}, a.Logger.With("component", "geo"))

	dev, err := cameraDevice(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Camera = camera.NewWidget(camera.NewExclusive(dev), a.Logger.With("component", "camera"))

	switch strings.ToLower(cfg.EventsBackend) {
	case "", "memory":
		a.Events = queue.NewInMemory(256)
	case "redis":
		a.Events = queue.NewRedisQueue(a.redis.Client, "")
	default:
		a.Close()
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}

	opts := attendance.Options{
		Camera:        a.Camera,
		Locator:       a.Locator,
		Events:        a.Events,
		Metrics:       a.Metrics,
		Logger:        a.Logger.With("component", "attendance"),
		SubmitTimeout: cfg.SubmitTimeout,
	}
	if a.Journal != nil {
		opts.Journal = a.Journal
	}
	a.Controller = attendance.NewController(a.API, opts)
	return a, nil
}

func needsRedis(cfg config.App) bool {
	return strings.EqualFold(cfg.StateBackend, "redis") || strings.EqualFold(cfg.EventsBackend, "redis")
}

func (a *App) stateStore(ctx context.Context) (store.KV, error) {
	switch strings.ToLower(a.Config.StateBackend) {
	case "", "memory":
		return store.NewMemoryKV(), nil
	case "redis":
		return store.NewRedisKV(a.redis.Client, ""), nil
	case "sql":
		if a.db == nil {
			return nil, errors.New("state backend sql needs a reachable JOURNAL_DSN")
		}
		return store.NewSQLKV(ctx, a.db.Client)
	default:
		return nil, fmt.Errorf("unknown state backend %q", a.Config.StateBackend)
	}
}

func cameraDevice(cfg config.App) (camera.Device, error) {
	switch strings.ToLower(cfg.CameraDevice) {
	case "file":
		return camera.FileDevice{Path: cfg.CameraSource}, nil
	case "", "command":
		return camera.CommandDevice{Command: cfg.CameraCommand, Source: cfg.CameraSource}, nil
	default:
		return nil, fmt.Errorf("unknown camera device %q", cfg.CameraDevice)
	}
}

// Health returns the reachability checks of the configured backends.
func (a *App) Health() map[string]func(context.Context) bool {
	checks := map[string]func(context.Context) bool{
		"journal": func(ctx context.Context) bool {
			return a.db != nil && a.db.Client.PingContext(ctx) == nil
		},
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Healthy
	}
	return checks
}

// Close stops the controller and releases the backends.
func (a *App) Close() {
	if a.Controller != nil {
		if err := a.Controller.Close(); err != nil {
			a.Logger.Warn("controller close failed", "err", err)
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Client.Close()
	}
}
