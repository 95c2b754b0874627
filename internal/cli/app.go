package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pysugar/homeauth/internal/auth/google"
	"github.com/pysugar/homeauth/internal/config"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/pysugar/homeauth/internal/device"
	"github.com/pysugar/homeauth/internal/directory"
	"github.com/pysugar/homeauth/internal/logging"
	"github.com/pysugar/homeauth/internal/metrics"
	"github.com/pysugar/homeauth/internal/monitor"
	"github.com/pysugar/homeauth/internal/session"
	"gorm.io/gorm"
)

// App is the wired subsystem shared by every command.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *gorm.DB
	Cache     *db.SessionCache
	Directory *directory.Client
	Provider  *google.Provider
	Devices   *device.Collector
	Monitor   *monitor.AttemptMonitor
	Metrics   *metrics.Metrics
	Engine    *session.Engine

	closers []func() error
}

// NewApp loads configuration and wires the subsystem. stderr receives logs
// and the sign-in URL when the browser is not opened automatically.
func NewApp(ctx context.Context, configPath string, stderr io.Writer) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(ctx, cfg, stderr)
}

func newAppFromConfig(ctx context.Context, cfg config.Config, stderr io.Writer) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.Setup(stderr, cfg.LogLevel, cfg.LogFormat),
	}

	cacheDB, err := db.InitDB(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	app.DB = cacheDB
	app.addCloser(func() error { return closeGorm(cacheDB) })
	app.Cache = db.NewSessionCache(cacheDB)

	dirDB, err := directory.Open(cfg.DirectoryDriver, cfg.DirectoryDSN)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.addCloser(func() error { return closeGorm(dirDB) })
	app.Directory = directory.NewClient(dirDB, cfg.DirectoryTimeout)

	providerOpts := google.Options{
		ClientSecret:    cfg.GoogleClientSecret,
		CallbackPort:    cfg.GoogleCallbackPort,
		CallbackTimeout: cfg.GoogleCallbackTimeout,
	}
	if !cfg.GoogleOpenBrowser {
		providerOpts.OpenBrowser = func(url string) error {
			fmt.Fprintf(stderr, "Open this URL to sign in:\n  %s\n", url)
			return nil
		}
	}
	app.Provider = google.NewProvider(providerOpts)
	app.Provider.Configure(cfg.GoogleClientID, cfg.GoogleForceRefreshRotation)
	if !app.Provider.Configured() {
		app.Logger.Warn("google client id not configured; sign-in will fail", "operation", "startup")
	}

	app.Metrics = metrics.New()
	app.Monitor = monitor.NewAttemptMonitor(cacheDB)
	app.addCloser(func() error { app.Monitor.Flush(); return nil })

	app.Devices = device.NewCollector(
		device.HostIdentity{},
		&device.NetworkLookup{
			Client:  &http.Client{},
			IPURL:   cfg.DeviceIPLookupURL,
			GeoURL:  cfg.DeviceGeoLookupURL,
			Timeout: cfg.DeviceLookupTimeout,
		},
		app.Metrics,
	)

	var pending session.PendingStore
	if cfg.PendingRedisURL != "" {
		store, err := session.NewRedisPendingStoreFromURL(ctx, cfg.PendingRedisURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.addCloser(store.Close)
		pending = store
	}

	app.Engine = session.NewEngine(session.Options{
		Provider:   app.Provider,
		Directory:  app.Directory,
		Cache:      app.Cache,
		Device:     app.Devices,
		Pending:    pending,
		PendingTTL: cfg.PendingTTL,
		Recorders:  []session.Recorder{app.Monitor, app.Metrics},
		Logger:     app.Logger,
	})
	app.Engine.Resume(ctx)

	return app, nil
}

func (a *App) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func closeGorm(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
