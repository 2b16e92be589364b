package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/MwailaCoding/storefront/api/middleware"
	"github.com/MwailaCoding/storefront/api/routes"
	"github.com/MwailaCoding/storefront/internal/backend"
	"github.com/MwailaCoding/storefront/internal/cart"
	"github.com/MwailaCoding/storefront/internal/checkout"
	"github.com/MwailaCoding/storefront/internal/connectivity"
	"github.com/MwailaCoding/storefront/internal/session"
	"github.com/MwailaCoding/storefront/internal/tracker"
	"github.com/MwailaCoding/storefront/pkg/config"
	"github.com/MwailaCoding/storefront/pkg/httpclient"
	"github.com/MwailaCoding/storefront/pkg/kv"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/metrics"
	"github.com/MwailaCoding/storefront/pkg/security"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired storefront agent.
type App struct {
	cfg     *config.Config
	logg    *logger.Logger
	server  *http.Server
	tracker *tracker.Tracker
	cart    *cart.Store
	monitor *connectivity.Monitor
	closers []io.Closer
}

// NewApp wires storage, the backend client and every service behind the
// local API. The caller must Close the app.
func NewApp(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, storeCloser, err := kv.Open(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, logg: logg, closers: []io.Closer{storeCloser}}

	sessions := session.NewStore(store, logg)
	if _, err := sessions.Load(ctx); err != nil {
		logg.WarnErr(ctx, "auth token could not be read", err)
	}

	fp := security.NewPhoneFingerprinter(cfg.Security.PhoneHashKey)

	httpc, err := httpclient.New(cfg.Backend.BaseURL,
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Backend.RequestTimeout}),
		httpclient.WithPolicy(httpclient.PolicyFromConfig(cfg.Retry)),
		httpclient.WithMetrics(metrics.NewHTTPClientMetrics(reg)),
		httpclient.WithLogger(logg),
		httpclient.WithRequestEditor(backend.AuthEditor(sessions)),
		httpclient.WithRequestEditor(forwardRequestID),
	)
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}
	api, err := backend.NewClient(backend.ClientParams{
		HTTP:          httpc,
		HealthTimeout: cfg.Health.ProbeTimeout,
		Logger:        logg,
		Fingerprinter: fp,
	})
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}

	app.cart, err = cart.NewStore(cart.StoreParams{KV: store, Logger: logg, Metrics: metrics.NewCartMetrics(reg)})
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}
	app.closers = append(app.closers, app.cart)
	if err := app.cart.Hydrate(ctx); err != nil {
		logg.WarnErr(ctx, "starting with an empty cart", err)
	}

	app.tracker, err = tracker.New(tracker.Params{
		Backend:            api,
		Logger:             logg,
		Metrics:            metrics.NewTrackerMetrics(reg),
		Fingerprinter:      fp,
		RefreshInterval:    cfg.Tracker.RefreshInterval,
		EventBuffer:        cfg.Tracker.EventBuffer,
		AutoRefreshEnabled: cfg.Tracker.AutoRefresh,
	})
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}
	app.closers = append(app.closers, app.tracker)

	app.monitor, err = connectivity.NewMonitor(connectivity.MonitorParams{
		Prober:    api,
		Logger:    logg,
		Interval:  cfg.Health.ProbeInterval,
		Listeners: []connectivity.Listener{app.tracker.SetOnline},
	})
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Cart:          app.cart,
		Orders:        api,
		Logger:        logg,
		Fingerprinter: fp,
		RetryCreate:   cfg.Checkout.RetryCreate,
		Mpesa: checkout.MpesaSettings{
			Paybill:      cfg.Checkout.MpesaPaybill,
			AccountLabel: cfg.Checkout.MpesaAccountLabel,
		},
	})
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}

	streamsDone := make(chan struct{})
	app.server = &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(cfg, logg, reg, metrics.NewAPIMetrics(reg), routes.Services{
			Storage:      store,
			Cart:         app.cart,
			Checkout:     checkoutSvc,
			Tracker:      app.tracker,
			Session:      sessions,
			Connectivity: app.monitor,
			StreamsDone:  streamsDone,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.server.RegisterOnShutdown(func() { close(streamsDone) })
	return app, nil
}

// Handler exposes the local API for in-process use.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves the API and runs the background loops until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Tracker.AutoRefresh {
		a.tracker.StartAutoRefresh(a.cfg.Tracker.RefreshInterval)
	}

	go func() {
		_ = a.monitor.Run(ctx)
	}()
	go a.logTrackerEvents(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logg.Info(ctx, "storefront api listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// logTrackerEvents drains the tracker's events so status changes reach the logs.
func (a *App) logTrackerEvents(ctx context.Context) {
	events := a.tracker.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			evCtx := a.logg.WithOrderID(ctx, ev.OrderID)
			switch ev.Kind {
			case tracker.EventStatusChanged:
				evCtx = a.logg.WithFields(evCtx, map[string]any{
					"from":  ev.From,
					"to":    ev.To,
					"label": ev.To.Label(),
				})
				a.logg.Info(evCtx, "order.status_changed")
			case tracker.EventError:
				a.logg.WarnErr(evCtx, "order.lookup_failed", ev.Err)
			}
		}
	}
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] != nil {
			err = multierr.Append(err, a.closers[i].Close())
		}
	}
	a.closers = nil
	return err
}

func forwardRequestID(ctx context.Context, req *http.Request) {
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}
}
