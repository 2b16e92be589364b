package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/MwailaCoding/storefront/internal/backend"
	"github.com/MwailaCoding/storefront/internal/cart"
	"github.com/MwailaCoding/storefront/pkg/enums"
	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/security"
	"github.com/MwailaCoding/storefront/pkg/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type cartStore interface {
	State() cart.State
	Clear(ctx context.Context) (cart.Result, error)
}

type orderCreator interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest, opts backend.CreateOptions) (*backend.CreateOrderResponse, error)
}

// CustomerDetails is what the customer fills in on the checkout form.
type CustomerDetails struct {
	CustomerName        string              `json:"customerName" validate:"notblank,max=120"`
	Phone               string              `json:"phone" validate:"notblank,phone"`
	DeliveryAddress     string              `json:"deliveryAddress" validate:"notblank,max=500"`
	SpecialInstructions string              `json:"specialInstructions,omitempty" validate:"max=500"`
	PaymentMethod       enums.PaymentMethod `json:"paymentMethod" validate:"required,oneof=mpesa cash_on_delivery"`
}

// MpesaSettings drive the manual paybill instructions shown after an M-PESA order.
type MpesaSettings struct {
	Paybill      string
	AccountLabel string
}

// PaymentInstructions tell the customer how to pay for an M-PESA order.
type PaymentInstructions struct {
	Paybill       string          `json:"paybill,omitempty"`
	AccountNumber string          `json:"accountNumber"`
	AccountLabel  string          `json:"accountLabel"`
	Amount        decimal.Decimal `json:"amount"`
	Steps         []string        `json:"steps"`
}

// Receipt confirms a placed order.
type Receipt struct {
	OrderID             int64                `json:"orderId"`
	Total               decimal.Decimal      `json:"total"`
	ItemCount           int                  `json:"itemCount"`
	PaymentMethod       enums.PaymentMethod  `json:"paymentMethod"`
	PaymentLabel        string               `json:"paymentLabel"`
	PaymentInstructions *PaymentInstructions `json:"paymentInstructions,omitempty"`
}

// ServiceParams wire the checkout service.
type ServiceParams struct {
	Cart          cartStore
	Orders        orderCreator
	Logger        *logger.Logger
	Fingerprinter *security.PhoneFingerprinter
	RetryCreate   bool
	Mpesa         MpesaSettings
}

// Service turns the cart into a backend order.
type Service struct {
	cart        cartStore
	orders      orderCreator
	logg        *logger.Logger
	fp          *security.PhoneFingerprinter
	retryCreate bool
	mpesa       MpesaSettings
	newKey      func() string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order creator required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	fp := params.Fingerprinter
	if fp == nil {
		fp = security.NewPhoneFingerprinter("")
	}
	mpesa := params.Mpesa
	if strings.TrimSpace(mpesa.AccountLabel) == "" {
		mpesa.AccountLabel = "order number"
	}
	return &Service{
		cart:        params.Cart,
		orders:      params.Orders,
		logg:        logg,
		fp:          fp,
		retryCreate: params.RetryCreate,
		mpesa:       mpesa,
		newKey:      uuid.NewString,
	}, nil
}

// PlaceOrder submits the current cart. The cart is cleared only after the
// backend confirms the order; on any failure it is left untouched.
func (s *Service) PlaceOrder(ctx context.Context, details CustomerDetails) (*Receipt, error) {
	details = normalize(details)
	if err := validation.Struct(details); err != nil {
		return nil, err
	}

	state := s.cart.State()
	if state.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is empty")
	}

	req := backend.CreateOrderRequest{
		CustomerName:        details.CustomerName,
		Phone:               details.Phone,
		DeliveryAddress:     details.DeliveryAddress,
		SpecialInstructions: details.SpecialInstructions,
		PaymentMethod:       details.PaymentMethod,
		Items:               make([]backend.OrderLine, 0, len(state.Items)),
	}
	for _, line := range state.Items {
		req.Items = append(req.Items, backend.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	opts := backend.CreateOptions{}
	if s.retryCreate {
		// one key per checkout so every retry is deduplicated server-side
		opts = backend.CreateOptions{IdempotencyKey: s.newKey(), Retry: true}
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"phone_ref":      s.fp.Fingerprint(details.Phone),
		"payment_method": details.PaymentMethod.String(),
		"item_count":     state.ItemCount,
	})
	created, err := s.orders.CreateOrder(ctx, req, opts)
	if err != nil {
		s.logg.WarnErr(ctx, "order submission failed; cart kept", err)
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submitting order")
		}
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, created.OrderID)

	if res, err := s.cart.Clear(ctx); err != nil {
		s.logg.Error(ctx, "order placed but cart could not be cleared", err)
	} else if res.PersistWarning != nil {
		s.logg.WarnErr(ctx, "order placed; cleared cart not persisted", res.PersistWarning)
	}

	receipt := &Receipt{
		OrderID:       created.OrderID,
		Total:         state.Total,
		ItemCount:     state.ItemCount,
		PaymentMethod: details.PaymentMethod,
		PaymentLabel:  details.PaymentMethod.Label(),
	}
	if details.PaymentMethod == enums.PaymentMethodMpesa {
		receipt.PaymentInstructions = s.mpesaInstructions(created.OrderID, state.Total)
	}
	s.logg.Info(ctx, "checkout complete")
	return receipt, nil
}

func (s *Service) mpesaInstructions(orderID int64, amount decimal.Decimal) *PaymentInstructions {
	account := fmt.Sprintf("%d", orderID)
	steps := []string{"Open M-PESA and select Lipa na M-PESA, then Pay Bill."}
	if s.mpesa.Paybill != "" {
		steps = append(steps, fmt.Sprintf("Enter business number %s.", s.mpesa.Paybill))
	}
	steps = append(steps,
		fmt.Sprintf("Enter account number %s (your %s).", account, s.mpesa.AccountLabel),
		fmt.Sprintf("Enter amount KES %s.", amount.StringFixed(2)),
		"Enter your M-PESA PIN and confirm.",
	)
	return &PaymentInstructions{
		Paybill:       s.mpesa.Paybill,
		AccountNumber: account,
		AccountLabel:  s.mpesa.AccountLabel,
		Amount:        amount,
		Steps:         steps,
	}
}

func normalize(d CustomerDetails) CustomerDetails {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.DeliveryAddress = strings.TrimSpace(d.DeliveryAddress)
	d.SpecialInstructions = strings.TrimSpace(d.SpecialInstructions)
	if method, err := enums.ParsePaymentMethod(string(d.PaymentMethod)); err == nil {
		d.PaymentMethod = method
	}
	return d
}
