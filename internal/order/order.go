// Package order exposes a read-only view of orders and the state guard that
// decides whether an order is still payable.
//
// The checkout engine never mutates order state. Orders are created and
// transitioned by the order service; this package only gates forward progress.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order exists for the given id.
var ErrNotFound = errors.New("order not found")

// Status is the order lifecycle state as owned by the order service.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// LineItem is a single purchasable row on an order.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"` // major units, e.g. "24.99"
	Quantity  int64           `json:"quantity"`
}

// Snapshot is a point-in-time read of an order. The caller reads it once per
// request and evaluates all checks against that single read.
type Snapshot struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	Email     string     `json:"email"`
	LineItems []LineItem `json:"lineItems"`
}

// Repository is the order service's read surface consumed by this engine.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Snapshot, error)
}
