// Package payments defines the narrow payment-processor surface the checkout
// engine depends on, plus the Stripe implementation.
package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// SessionLineItem is one row of a payment session, in processor terms:
// integer minor units and a lower-cased currency code.
type SessionLineItem struct {
	Name       string
	Currency   string
	UnitAmount int64 // minor units (cents)
	Quantity   int64
}

// SessionRequest asks the processor to create a hosted payment session.
type SessionRequest struct {
	LineItems     []SessionLineItem
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is the processor's handle for a created payment session.
type Session struct {
	ID  string
	URL string
}

// Processor creates payment sessions with an external vendor.
type Processor interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)
}

// MinorUnits converts a major-unit price to integer minor units
// (price × 100, rounded). Decimal math avoids the float drift that turns
// 19.99 into 1998 cents.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NormalizeCurrency lower-cases a currency code for the processor wire format.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}
