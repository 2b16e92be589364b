package controllers

import (
	"context"
	"net/http"

	"github.com/MwailaCoding/storefront/api/responses"
	"github.com/MwailaCoding/storefront/api/validators"
	"github.com/MwailaCoding/storefront/internal/checkout"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, details checkout.CustomerDetails) (*checkout.Receipt, error)
}

// CheckoutPlaceOrder submits the cart as an order. The cart is kept on failure.
func CheckoutPlaceOrder(svc orderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkout.CustomerDetails
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := svc.PlaceOrder(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}
