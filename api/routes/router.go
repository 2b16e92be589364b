package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MwailaCoding/storefront/api/controllers"
	"github.com/MwailaCoding/storefront/api/middleware"
	"github.com/MwailaCoding/storefront/internal/cart"
	"github.com/MwailaCoding/storefront/internal/checkout"
	"github.com/MwailaCoding/storefront/internal/connectivity"
	"github.com/MwailaCoding/storefront/internal/session"
	"github.com/MwailaCoding/storefront/internal/tracker"
	"github.com/MwailaCoding/storefront/pkg/config"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/metrics"
)

type storagePinger interface {
	Ping(ctx context.Context) error
}

// Services are the components exposed over the local API.
type Services struct {
	Storage      storagePinger
	Cart         *cart.Store
	Checkout     *checkout.Service
	Tracker      *tracker.Tracker
	Session      *session.Store
	Connectivity *connectivity.Monitor

	// StreamsDone ends open event streams when closed.
	StreamsDone <-chan struct{}
}

// NewRouter wires the local storefront API. gatherer may be nil, in which
// case /metrics is not mounted.
func NewRouter(cfg *config.Config, logg *logger.Logger, gatherer prometheus.Gatherer, apiMetrics *metrics.APIMetrics, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, apiMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var backendStatus interface{ Status() connectivity.Status }
	if svc.Connectivity != nil {
		backendStatus = svc.Connectivity
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, svc.Storage, backendStatus, logg))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(svc.Cart))
			r.Get("/events", controllers.CartEvents(svc.Cart, svc.StreamsDone, logg))
			r.Delete("/", controllers.CartClear(svc.Cart, logg))
			r.Post("/items", controllers.CartAddItem(svc.Cart, logg))
			r.Patch("/items/{productID}", controllers.CartUpdateItem(svc.Cart, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(svc.Cart, logg))
		})

		r.Post("/checkout", controllers.CheckoutPlaceOrder(svc.Checkout, logg))

		r.Route("/tracking", func(r chi.Router) {
			r.Get("/", controllers.TrackingState(svc.Tracker))
			r.Delete("/", controllers.TrackingReset(svc.Tracker))
			r.Post("/search", controllers.TrackingSearch(svc.Tracker, logg))
			r.Post("/ack", controllers.TrackingAcknowledge(svc.Tracker))
			r.Put("/auto-refresh", controllers.TrackingAutoRefresh(svc.Tracker, logg))
		})

		r.Route("/session", func(r chi.Router) {
			r.Put("/token", controllers.SessionSaveToken(svc.Session, logg))
			r.Delete("/token", controllers.SessionClearToken(svc.Session, logg))
		})
	})

	return r
}
