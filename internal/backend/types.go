package backend

import (
	"strings"

	"github.com/MwailaCoding/storefront/pkg/enums"
	"github.com/shopspring/decimal"
)

// OrderSummary is one entry of the by-phone list response.
type OrderSummary struct {
	OrderID     int64             `json:"order_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Status      enums.OrderStatus `json:"status"`
	CreatedAt   string            `json:"created_at"`
	ItemsCount  int               `json:"items_count"`
}

// OrderItem is a line of an order detail.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderDetail is the single-order by-phone response. UpdatedAt is only used
// for change detection.
type OrderDetail struct {
	OrderID         int64             `json:"order_id"`
	CustomerName    string            `json:"customer_name"`
	Phone           string            `json:"phone"`
	DeliveryAddress string            `json:"delivery_address"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Status          enums.OrderStatus `json:"status"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       *string           `json:"updated_at,omitempty"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
	Items           []OrderItem       `json:"items,omitempty"`
}

// Clone returns a deep copy.
func (d *OrderDetail) Clone() *OrderDetail {
	if d == nil {
		return nil
	}
	out := *d
	if d.UpdatedAt != nil {
		updated := *d.UpdatedAt
		out.UpdatedAt = &updated
	}
	if d.Items != nil {
		out.Items = append([]OrderItem(nil), d.Items...)
	}
	return &out
}

// Lookup is the result of a by-phone search: a list of summaries or a
// single detail, never both.
type Lookup struct {
	Summaries []OrderSummary
	Detail    *OrderDetail
}

// IsList reports whether the backend answered with a summary list.
func (l *Lookup) IsList() bool {
	return l != nil && l.Detail == nil
}

func (l *Lookup) clone() *Lookup {
	if l == nil {
		return nil
	}
	out := &Lookup{Detail: l.Detail.Clone()}
	if l.Summaries != nil {
		out.Summaries = append([]OrderSummary(nil), l.Summaries...)
	}
	return out
}

// OrderLine is one cart line sent on order creation.
type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateOrderRequest is the POST /api/orders body.
type CreateOrderRequest struct {
	CustomerName        string              `json:"customer_name"`
	Phone               string              `json:"phone"`
	DeliveryAddress     string              `json:"delivery_address"`
	SpecialInstructions string              `json:"special_instructions,omitempty"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	Items               []OrderLine         `json:"items"`
}

// CreateOrderResponse is the backend acknowledgement.
type CreateOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

// normalizeStatus folds backend spelling variants onto the known enum and
// leaves unknown values lowercased.
func normalizeStatus(s enums.OrderStatus) enums.OrderStatus {
	if parsed, err := enums.ParseOrderStatus(string(s)); err == nil {
		return parsed
	}
	return enums.OrderStatus(strings.ToLower(strings.TrimSpace(string(s))))
}
