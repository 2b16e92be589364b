package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/MwailaCoding/storefront/api/responses"
	"github.com/MwailaCoding/storefront/api/validators"
	"github.com/MwailaCoding/storefront/internal/tracker"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

type orderTracker interface {
	Search(ctx context.Context, phone string, opts tracker.SearchOptions) (tracker.Snapshot, error)
	Snapshot() tracker.Snapshot
	AcknowledgeChange()
	Reset()
	StartAutoRefresh(interval time.Duration)
	StopAutoRefresh()
	SetRefreshInterval(interval time.Duration) error
	SetEnabled(enabled bool)
}

// Any non-blank phone is forwarded; matching belongs to the backend.
type trackingSearchRequest struct {
	Phone string `json:"phone" validate:"notblank"`
}

// TrackingSearch looks up orders for a phone number in the foreground.
func TrackingSearch(svc orderTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload trackingSearchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := svc.Search(r.Context(), payload.Phone, tracker.SearchOptions{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

func TrackingState(svc orderTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

func TrackingAcknowledge(svc orderTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.AcknowledgeChange()
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

func TrackingReset(svc orderTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Reset()
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

// autoRefreshRequest leaves a setting untouched when its field is omitted.
type autoRefreshRequest struct {
	Enabled         *bool    `json:"enabled"`
	Running         *bool    `json:"running"`
	IntervalSeconds *float64 `json:"intervalSeconds" validate:"omitempty,gte=1,lte=3600"`
}

// TrackingAutoRefresh toggles the background refresh loop and its interval.
func TrackingAutoRefresh(svc orderTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload autoRefreshRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if payload.IntervalSeconds != nil {
			interval := time.Duration(*payload.IntervalSeconds * float64(time.Second))
			if err := svc.SetRefreshInterval(interval); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if payload.Enabled != nil {
			svc.SetEnabled(*payload.Enabled)
		}
		if payload.Running != nil {
			if *payload.Running {
				svc.StartAutoRefresh(0)
			} else {
				svc.StopAutoRefresh()
			}
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}
