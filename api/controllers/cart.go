package controllers

import (
	"context"
	"net/http"

	"github.com/MwailaCoding/storefront/api/responses"
	"github.com/MwailaCoding/storefront/api/validators"
	"github.com/MwailaCoding/storefront/internal/cart"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

const (
	persistWarning       = "cart updated but could not be saved on this device"
	maxCustomizationSize = 200
)

type cartService interface {
	State() cart.State
	AddItem(ctx context.Context, in cart.AddItemInput) (cart.Result, error)
	UpdateQuantity(ctx context.Context, productID int64, customization string, qty int) (cart.Result, error)
	RemoveItem(ctx context.Context, productID int64, customization string) (cart.Result, error)
	RemoveProduct(ctx context.Context, productID int64) (cart.Result, error)
	Clear(ctx context.Context) (cart.Result, error)
}

// CartFetch returns the current cart with derived totals.
func CartFetch(svc cartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.State())
	}
}

func CartAddItem(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cart.AddItemInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Customization = validators.SanitizeString(payload.Customization, maxCustomizationSize)

		res, err := svc.AddItem(r.Context(), payload)
		writeCartResult(r.Context(), logg, w, res, err)
	}
}

type updateQuantityRequest struct {
	Quantity      *int   `json:"quantity" validate:"required"`
	Customization string `json:"customization"`
}

// CartUpdateItem sets the quantity of one line. Zero or less removes it.
func CartUpdateItem(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customization := validators.SanitizeString(payload.Customization, maxCustomizationSize)
		res, err := svc.UpdateQuantity(r.Context(), productID, customization, *payload.Quantity)
		writeCartResult(r.Context(), logg, w, res, err)
	}
}

// CartRemoveItem drops one line, or every line of the product when all=true.
func CartRemoveItem(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		all, err := validators.ParseQueryBool(r, "all", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var res cart.Result
		if all {
			res, err = svc.RemoveProduct(r.Context(), productID)
		} else {
			customization := validators.SanitizeString(r.URL.Query().Get("customization"), maxCustomizationSize)
			res, err = svc.RemoveItem(r.Context(), productID, customization)
		}
		writeCartResult(r.Context(), logg, w, res, err)
	}
}

func CartClear(svc cartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Clear(r.Context())
		writeCartResult(r.Context(), logg, w, res, err)
	}
}

func writeCartResult(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, res cart.Result, err error) {
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	if res.PersistWarning != nil {
		responses.WriteSuccessWithWarning(w, res.State, persistWarning)
		return
	}
	responses.WriteSuccess(w, res.State)
}
