package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

const stripeTimeout = 10 * time.Second

// StripeProcessor creates Stripe Checkout Sessions.
type StripeProcessor struct {
	api *client.API
}

// NewStripeProcessor builds a processor with its own API client so the
// global stripe key is never touched.
func NewStripeProcessor(apiKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProcessor{api: api}
}

// CreateSession creates a hosted Checkout Session. The call is bounded by
// stripeTimeout regardless of the caller's context.
func (p *StripeProcessor) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, stripeTimeout)
	defer cancel()

	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(li.Currency),
				UnitAmount: stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  items,
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}
