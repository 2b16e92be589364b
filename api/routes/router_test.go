package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
)

// fakeBackend mimics the ordering API: one order exists for 0712345678.
type fakeBackend struct {
	created   atomic.Int64
	lastAuth  atomic.Value
	lastOrder atomic.Value
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		f.lastAuth.Store(auth)
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/health":
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/orders/by-phone":
		if r.URL.Query().Get("phone") != "0712345678" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"no orders"}`)
			return
		}
		_, _ = io.WriteString(w, `{"order_id":55,"customer_name":"Amina","phone":"0712345678","delivery_address":"Ngong Rd","total_amount":"1200.00","status":"preparing","created_at":"2026-10-01T10:00:00Z"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/api/orders":
		body, _ := io.ReadAll(r.Body)
		f.lastOrder.Store(string(body))
		f.created.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"order_id":77}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type harness struct {
	handler http.Handler
	backend *fakeBackend
	cart    *cart.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	logg := logger.Nop()
	reg := prometheus.NewRegistry()
	store := kv.NewMemoryStore()
	sessions := session.NewStore(store, logg)

	httpc, err := httpclient.New(srv.URL,
		httpclient.WithLogger(logg),
		httpclient.WithMetrics(metrics.NewHTTPClientMetrics(reg)),
		httpclient.WithRequestEditor(backend.AuthEditor(sessions)),
	)
	require.NoError(t, err)
	api, err := backend.NewClient(backend.ClientParams{HTTP: httpc, Logger: logg})
	require.NoError(t, err)

	cartStore, err := cart.NewStore(cart.StoreParams{KV: store, Logger: logg, Metrics: metrics.NewCartMetrics(reg)})
	require.NoError(t, err)
	require.NoError(t, cartStore.Hydrate(context.Background()))

	trk, err := tracker.New(tracker.Params{Backend: api, Logger: logg, Metrics: metrics.NewTrackerMetrics(reg)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = trk.Close() })

	monitor, err := connectivity.NewMonitor(connectivity.MonitorParams{Prober: api, Logger: logg, Listeners: []connectivity.Listener{trk.SetOnline}})
	require.NoError(t, err)

	co, err := checkout.NewService(checkout.ServiceParams{
		Cart:   cartStore,
		Orders: api,
		Logger: logg,
		Mpesa:  checkout.MpesaSettings{Paybill: "400200"},
	})
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}}}
	h := NewRouter(cfg, logg, reg, metrics.NewAPIMetrics(reg), Services{
		Storage:      store,
		Cart:         cartStore,
		Checkout:     co,
		Tracker:      trk,
		Session:      sessions,
		Connectivity: monitor,
	})
	return &harness{handler: h, backend: fb, cart: cartStore}
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = h.do(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestHealthReadyWithoutMonitor(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	h := NewRouter(cfg, logger.Nop(), nil, nil, Services{Storage: kv.NewMemoryStore()})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "ready", env.Data["status"])
	assert.NotContains(t, env.Data, "backend")
}

func TestCartToCheckoutFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/cart/items", `{"productId":7,"name":"Pilau","unitPrice":"400","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"itemCount":3`)

	rec = h.do(t, http.MethodPut, "/api/session/token", `{"token":"opaque-token"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/checkout", `{"customerName":"Amina","phone":"0712 345 678","deliveryAddress":"Ngong Rd","paymentMethod":"mpesa"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env struct {
		Data checkout.Receipt `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, int64(77), env.Data.OrderID)
	require.NotNil(t, env.Data.PaymentInstructions)
	assert.Equal(t, "400200", env.Data.PaymentInstructions.Paybill)

	assert.Equal(t, int64(1), h.backend.created.Load())
	assert.Equal(t, "Bearer opaque-token", h.backend.lastAuth.Load())
	assert.Contains(t, h.backend.lastOrder.Load(), `"payment_method":"mpesa"`)
	assert.True(t, h.cart.State().IsEmpty())
}

func TestCheckoutEmptyCartConflict(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/checkout", `{"customerName":"Amina","phone":"0712345678","deliveryAddress":"Ngong Rd","paymentMethod":"cash_on_delivery"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, h.backend.created.Load())
}

func TestTrackingRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/tracking/search", `{"phone":"0712345678"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data tracker.Snapshot `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NotNil(t, env.Data.Current)
	assert.Equal(t, int64(55), env.Data.Current.OrderID)
	require.NotNil(t, env.Data.Timeline)

	rec = h.do(t, http.MethodPost, "/api/tracking/search", `{"phone":"0799999999"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notFound":true`)

	rec = h.do(t, http.MethodPut, "/api/tracking/auto-refresh", `{"enabled":true,"running":true,"intervalSeconds":60}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"intervalSeconds":60`)

	rec = h.do(t, http.MethodPost, "/api/tracking/ack", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/tracking", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	_ = h.do(t, http.MethodGet, "/api/cart", "")

	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_api_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/nope", "").Code)
}
