package tracker

import (
	"time"

	"github.com/MwailaCoding/storefront/internal/backend"
	"github.com/MwailaCoding/storefront/pkg/enums"
)

// EventKind distinguishes tracker events.
type EventKind string

const (
	EventStatusChanged EventKind = "status_changed"
	EventError         EventKind = "error"
)

// Event is published on the tracker's side channel.
type Event struct {
	Kind    EventKind         `json:"kind"`
	OrderID int64             `json:"orderId,omitempty"`
	From    enums.OrderStatus `json:"from,omitempty"`
	To      enums.OrderStatus `json:"to,omitempty"`
	Err     error             `json:"-"`
	At      time.Time         `json:"at"`
}

// AutoRefreshState describes the polling loop. Requested is the caller's
// intent; Active is whether a loop is actually running.
type AutoRefreshState struct {
	Requested bool          `json:"requested"`
	Active    bool          `json:"active"`
	Enabled   bool          `json:"enabled"`
	Online    bool          `json:"online"`
	Interval  time.Duration `json:"-"`

	// IntervalSeconds mirrors Interval for JSON consumers.
	IntervalSeconds float64 `json:"intervalSeconds"`
}

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	Phone         string                 `json:"phone,omitempty"`
	Orders        []backend.OrderSummary `json:"orders,omitempty"`
	Current       *backend.OrderDetail   `json:"current,omitempty"`
	Previous      *backend.OrderDetail   `json:"previous,omitempty"`
	StatusChanged bool                   `json:"statusChanged"`
	NotFound      bool                   `json:"notFound"`
	Loading       bool                   `json:"loading"`
	Error         string                 `json:"error,omitempty"`
	LastUpdated   *time.Time             `json:"lastUpdated,omitempty"`
	Timeline      *Timeline              `json:"timeline,omitempty"`
	AutoRefresh   AutoRefreshState       `json:"autoRefresh"`
}
