package enums

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PaymentMethod describes how a customer settles a food order.
type PaymentMethod string

const (
	PaymentMethodMpesa          PaymentMethod = "mpesa"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodMpesa,
	PaymentMethodCashOnDelivery,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// Label is the customer-facing name shown on receipts.
func (p PaymentMethod) Label() string {
	switch p {
	case PaymentMethodMpesa:
		return "M-PESA"
	case PaymentMethodCashOnDelivery:
		return "Cash on delivery"
	}
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Matching is
// case-insensitive and accepts "cod" for cash on delivery.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "cod" {
		return PaymentMethodCashOnDelivery, nil
	}
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// UnmarshalJSON accepts the lenient forms ParsePaymentMethod does. Unknown
// values are kept as sent so validation can report them.
func (p *PaymentMethod) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, err := ParsePaymentMethod(raw); err == nil {
		*p = parsed
		return nil
	}
	*p = PaymentMethod(raw)
	return nil
}
