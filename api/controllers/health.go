package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/MwailaCoding/storefront/api/responses"
	"github.com/MwailaCoding/storefront/internal/connectivity"
	"github.com/MwailaCoding/storefront/pkg/config"
	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

const envHeader = "X-Storefront-Env"

type storagePinger interface {
	Ping(ctx context.Context) error
}

type backendStatus interface {
	Status() connectivity.Status
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails only when local storage is unreachable. An offline
// backend is reported but does not make the agent unready.
func HealthReady(cfg *config.Config, store storagePinger, backend backendStatus, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeoutOrDefault(cfg.Health.ProbeTimeout))
		defer cancel()
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storage unavailable"))
				return
			}
		}

		payload := map[string]any{"status": "ready"}
		if backend != nil {
			payload["backend"] = backend.Status()
		}
		responses.WriteSuccess(w, payload)
	}
}

// probeTimeoutOrDefault keeps readiness bounded even with a zero config.
func probeTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
