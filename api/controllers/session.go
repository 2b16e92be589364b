package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/MwailaCoding/storefront/api/responses"
	"github.com/MwailaCoding/storefront/api/validators"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

type tokenSlot interface {
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type saveTokenRequest struct {
	Token string `json:"token" validate:"notblank"`
}

// SessionSaveToken stores the auth token attached to backend calls.
func SessionSaveToken(slot tokenSlot, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload saveTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := strings.TrimSpace(payload.Token)
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = strings.TrimSpace(token[7:])
		}
		if err := slot.Save(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SessionClearToken(slot tokenSlot, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := slot.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
