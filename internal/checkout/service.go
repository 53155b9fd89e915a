// Package checkout sequences a checkout attempt: token verification, order
// state checks, and payment session creation, short-circuiting on the first
// failure. The token is verified before the order is fetched so a failed
// token reveals nothing about order existence.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/purrify/checkout-engine/internal/events"
	"github.com/purrify/checkout-engine/internal/logging"
	"github.com/purrify/checkout-engine/internal/metrics"
	"github.com/purrify/checkout-engine/internal/order"
	"github.com/purrify/checkout-engine/internal/payments"
	"github.com/purrify/checkout-engine/internal/token"
	"github.com/purrify/checkout-engine/internal/traces"
)

// State-conflict errors. These are legitimate business states, not attacks,
// and map to their own status codes.
var (
	ErrAlreadyProcessed = errors.New("order already processed")
	ErrOrderExpired     = errors.New("order expired")
)

const fetchTimeout = 5 * time.Second

// Request is a validated checkout request.
type Request struct {
	OrderID  string
	Token    string
	Currency string
	Email    string
	Name     string
}

// Result is a successful checkout: the payment session to redirect to.
type Result struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Service orchestrates checkout session creation.
type Service struct {
	codec      *token.Codec
	orders     order.Repository
	guard      order.Guard
	processor  payments.Processor
	events     *events.Logger
	successURL string
	cancelURL  string

	now func() time.Time
}

// NewService wires the checkout orchestrator. The event logger may be nil.
func NewService(codec *token.Codec, orders order.Repository, guard order.Guard, processor payments.Processor, ev *events.Logger, successURL, cancelURL string) *Service {
	return &Service{
		codec:      codec,
		orders:     orders,
		guard:      guard,
		processor:  processor,
		events:     ev,
		successURL: successURL,
		cancelURL:  cancelURL,
		now:        time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateSession runs the checkout sequence. Errors are sentinel values the
// handler maps to status codes: token.ErrInvalidToken, order.ErrNotFound,
// ErrAlreadyProcessed, ErrOrderExpired; anything else is a processor or
// repository failure.
func (s *Service) CreateSession(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "checkout.CreateSession", traces.OrderID(req.OrderID))
	defer span.End()

	requestID := logging.RequestID(ctx)
	now := s.now()

	if err := s.codec.Verify(req.OrderID, req.Token, now); err != nil {
		s.events.Emit(events.TypeInvalidToken, requestID, map[string]interface{}{
			"orderId": req.OrderID,
		})
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	snap, err := s.orders.FindByID(fetchCtx, req.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("fetch order %s: %w", req.OrderID, err)
	}

	switch s.guard.Evaluate(snap, now) {
	case order.AlreadyProcessed:
		s.events.Emit(events.TypeOrderConflict, requestID, map[string]interface{}{
			"orderId": snap.ID,
			"status":  string(snap.Status),
		})
		return nil, ErrAlreadyProcessed
	case order.Expired:
		return nil, ErrOrderExpired
	}

	sessReq := s.buildSessionRequest(snap, req)
	sess, err := s.processor.CreateSession(ctx, sessReq)
	if err != nil {
		metrics.PaymentSessionErrorsTotal.Inc()
		s.events.Emit(events.TypePaymentFailed, requestID, map[string]interface{}{
			"orderId": snap.ID,
		})
		return nil, fmt.Errorf("payment session for order %s: %w", snap.ID, err)
	}

	span.SetAttributes(traces.SessionID(sess.ID))
	s.events.Emit(events.TypeCheckoutStarted, requestID, map[string]interface{}{
		"orderId":   snap.ID,
		"sessionId": sess.ID,
	})
	return &Result{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *Service) buildSessionRequest(snap *order.Snapshot, req *Request) *payments.SessionRequest {
	currency := payments.NormalizeCurrency(req.Currency)
	items := make([]payments.SessionLineItem, 0, len(snap.LineItems))
	for _, li := range snap.LineItems {
		items = append(items, payments.SessionLineItem{
			Name:       li.Name,
			Currency:   currency,
			UnitAmount: payments.MinorUnits(li.UnitPrice),
			Quantity:   li.Quantity,
		})
	}

	email := req.Email
	if email == "" {
		email = snap.Email
	}

	return &payments.SessionRequest{
		LineItems:     items,
		CustomerEmail: email,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata:      map[string]string{"orderId": snap.ID},
	}
}
