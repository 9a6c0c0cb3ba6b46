// Package app assembles the treewalk components from settings.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"

	"treewalk/internal/config"
	"treewalk/internal/core"
	"treewalk/internal/logging"
	"treewalk/internal/metrics"
	"treewalk/internal/panorama"
	"treewalk/internal/server"
	"treewalk/internal/session"
	"treewalk/internal/slot"
)

// App is a wired treewalk instance.
type App struct {
	Settings *config.Settings
	Store    *core.RecordStore
	Session  *session.Controller
	Server   *server.Server
	Metrics  *metrics.Metrics
	finder   panorama.Finder
	logger   log.Interface
}

// Options overrides pieces of the default wiring, mostly for tests.
type Options struct {
	Slot     slot.Slot
	Finder   panorama.Finder
	Registry *prometheus.Registry
}

// New opens the slot, loads the record store and wires the session and the
// HTTP server.
func New(ctx context.Context, settings *config.Settings, logger log.Interface, opts Options) (*App, error) {
	logger = logging.OrDefault(logger)
	loc, err := settings.Location()
	if err != nil {
		return nil, fmt.Errorf("display timezone: %w", err)
	}
	m, err := metrics.New(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	s := opts.Slot
	if s == nil {
		s, err = slot.Open(ctx, settings.SlotConfig())
		if err != nil {
			return nil, fmt.Errorf("open slot: %w", err)
		}
	}
	store := core.NewRecordStore(s, core.WithLogger(logger), core.WithMetrics(m))
	status := store.Load(ctx)
	logger.WithFields(log.Fields{
		"driver":  store.Slot().Driver(),
		"slot":    store.Slot().Name(),
		"status":  status,
		"records": store.Len(),
	}).Info("record store loaded")

	finder := opts.Finder
	if finder == nil {
		finder, err = panorama.NewFinder(settings.PanoramaConfig(), m, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("panorama finder: %w", err)
		}
	}
	viewer := panorama.NewViewer(finder,
		panorama.WithRadius(settings.Panorama.Radius),
		panorama.WithViewerLogger(logger),
		panorama.WithLookupObserver(m),
	)
	sess := session.New(store, viewer,
		session.WithCenter(settings.DefaultCenter()),
		session.WithSettleDelay(settings.Session.SettleDelay),
		session.WithLocation(loc),
		session.WithLogger(logger),
		session.WithImportObserver(m),
	)
	srv := server.New(server.Config{
		AllowedOrigins: settings.Server.AllowedOrigins,
		Radius:         settings.Panorama.Radius,
		MaxImportBytes: settings.Server.MaxImportBytes,
	}, server.Deps{Session: sess, Finder: finder, Metrics: m.Handler(), Logger: logger})

	return &App{Settings: settings, Store: store, Session: sess, Server: srv, Metrics: m, finder: finder, logger: logger}, nil
}

// Run serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.ListenAndServe(ctx, a.Settings.Server.Addr, a.Settings.Server.ShutdownTimeout)
}

// Close stops the session, drops the lookup cache and releases the slot.
func (a *App) Close() error {
	a.Session.Close()
	if c, ok := a.finder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.WithError(err).Warn("close panorama finder")
		}
	}
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close slot: %w", err)
	}
	return nil
}
