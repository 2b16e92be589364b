package cart

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultCustomization is the identity used for lines added without a customization.
const DefaultCustomization = "default"

// Line is one entry in the cart. Two lines never share (ProductID, Customization).
type Line struct {
	ProductID     int64           `json:"productId"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Quantity      int             `json:"quantity"`
	ImagePath     string          `json:"imagePath,omitempty"`
	Customization string          `json:"customization,omitempty"`
}

// Subtotal is UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) key() string {
	return lineKey(l.ProductID, l.Customization)
}

func lineKey(productID int64, customization string) string {
	if customization == "" {
		customization = DefaultCustomization
	}
	return strconv.FormatInt(productID, 10) + "|" + customization
}

// State is a read-only view of the cart. Total and ItemCount are always
// derived from Items.
type State struct {
	Items     []Line          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// IsEmpty reports whether the cart holds no lines.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

func newState(lines []Line) State {
	items := make([]Line, len(lines))
	copy(items, lines)
	total := decimal.Zero
	count := 0
	for _, line := range items {
		total = total.Add(line.Subtotal())
		count += line.Quantity
	}
	return State{Items: items, Total: total, ItemCount: count}
}

// AddItemInput is the payload for AddItem. Quantity defaults to 1.
type AddItemInput struct {
	ProductID     int64           `json:"productId" validate:"required,gt=0"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	ImagePath     string          `json:"imagePath,omitempty"`
	Customization string          `json:"customization,omitempty"`
	Quantity      *int            `json:"quantity,omitempty" validate:"omitempty,gte=1"`
}

func (in AddItemInput) quantity() int {
	if in.Quantity == nil {
		return 1
	}
	return *in.Quantity
}

// Result is returned by every mutation. PersistWarning is set when the new
// state could not be written to storage; the in-memory state is still applied.
type Result struct {
	State          State `json:"state"`
	PersistWarning error `json:"-"`
}
