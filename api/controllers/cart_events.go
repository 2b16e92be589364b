package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MwailaCoding/storefront/internal/cart"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

type cartSubscriber interface {
	State() cart.State
	Subscribe() (<-chan cart.State, func())
}

// CartEvents streams the cart as server-sent events: the current state first,
// then the state after every mutation. The stream ends when the client goes
// away, the store closes or done is closed.
func CartEvents(svc cartSubscriber, done <-chan struct{}, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rc := http.NewResponseController(w)

		updates, unsubscribe := svc.Subscribe()
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := writeCartEvent(w, rc, svc.State()); err != nil {
			if logg != nil {
				logg.WarnErr(ctx, "cart event stream unavailable", err)
			}
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case state, ok := <-updates:
				if !ok {
					return
				}
				if err := writeCartEvent(w, rc, state); err != nil {
					if logg != nil {
						logg.Debug(ctx, "cart event stream closed")
					}
					return
				}
			}
		}
	}
}

func writeCartEvent(w http.ResponseWriter, rc *http.ResponseController, state cart.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return rc.Flush()
}
