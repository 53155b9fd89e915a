// Package events records security-relevant checkout activity: blocked
// attempts, invalid tokens, rate-limit denials, risk assessments. Records
// feed both a durable audit trail and the live WebSocket feed.
package events

import (
	"context"
	"time"

	"github.com/purrify/checkout-engine/internal/idgen"
)

// Type classifies a security event.
type Type string

const (
	TypeCheckoutStarted    Type = "CHECKOUT_STARTED"
	TypeCheckoutBlocked    Type = "CHECKOUT_BLOCKED"
	TypeInvalidToken       Type = "INVALID_TOKEN"
	TypeOrderConflict      Type = "ORDER_CONFLICT"
	TypeRateLimited        Type = "RATE_LIMITED"
	TypeRiskAssessed       Type = "RISK_ASSESSED"
	TypeSuspiciousActivity Type = "SUSPICIOUS_ACTIVITY"
	TypePaymentFailed      Type = "PAYMENT_FAILED"
)

// Event is one security event. Data carries type-specific detail and must
// not contain raw PII; callers pass fingerprints, not emails.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"requestId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New builds an event with a fresh ID and the current time.
func New(t Type, requestID string, data map[string]interface{}) *Event {
	return &Event{
		ID:        idgen.WithPrefix("sev_"),
		Type:      t,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Data:      data,
	}
}

// Store persists security events.
type Store interface {
	Record(ctx context.Context, ev *Event) error
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
}
