package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MwailaCoding/storefront/pkg/config"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		App:     config.AppConfig{Env: "test", Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		Backend: config.BackendConfig{BaseURL: backendURL, RequestTimeout: 2 * time.Second},
		Retry:   config.RetryConfig{MaxAttempts: 1},
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		Tracker: config.TrackerConfig{RefreshInterval: time.Minute, EventBuffer: 4},
		Health:  config.HealthConfig{ProbeInterval: time.Minute, ProbeTimeout: time.Second},
	}
}

func newBackend(t *testing.T, seenRequestID *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seenRequestID != nil {
			seenRequestID.Store(r.Header.Get("X-Request-Id"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/orders/by-phone" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewAppServesAPI(t *testing.T) {
	var requestID atomic.Value
	srv := newBackend(t, &requestID)

	app, err := NewApp(context.Background(), testConfig(srv.URL), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/tracking/search", strings.NewReader(`{"phone":"0712345678"}`))
	req.Header.Set("X-Request-Id", "trace-1")
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "trace-1", requestID.Load())
}

func TestNewAppRejectsBadBackendURL(t *testing.T) {
	cfg := testConfig("not a url")
	_, err := NewApp(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := newBackend(t, nil)
	app, err := NewApp(context.Background(), testConfig(srv.URL), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

