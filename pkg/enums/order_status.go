package enums

import (
	"fmt"
	"strings"
)

// OrderStatus is the backend-reported lifecycle state of a food order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderProgression is the canonical forward order shown on the tracking timeline.
var OrderProgression = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

var validOrderStatuses = append(append([]OrderStatus{}, OrderProgression...), OrderStatusCancelled)

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Step returns the position of s in OrderProgression, or -1.
func (s OrderStatus) Step() int {
	for i, candidate := range OrderProgression {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transitions are expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Label is the human-readable form used on the timeline.
func (s OrderStatus) Label() string {
	switch s {
	case OrderStatusOutForDelivery:
		return "Out for delivery"
	case "":
		return ""
	}
	raw := strings.ReplaceAll(string(s), "_", " ")
	return strings.ToUpper(raw[:1]) + raw[1:]
}

// ParseOrderStatus converts raw input into an OrderStatus. The backend also
// sends "canceled"; both spellings map to OrderStatusCancelled.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "canceled" {
		return OrderStatusCancelled, nil
	}
	for _, candidate := range validOrderStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
