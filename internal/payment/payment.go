// Package payment adapts the remote payment provider to the checkout
// contract: register an order, get back a provider-side identifier. Capture
// and settlement happen elsewhere.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// stripeIntentAPI is the slice of the Stripe SDK the provider needs; tests
// substitute a stub here.
type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProvider creates Stripe payment intents for placed orders.
type StripeProvider struct {
	intents  stripeIntentAPI
	currency string
}

// NewStripeProvider constructs a StripeProvider using the given API key.
func NewStripeProvider(apiKey, currency string) (*StripeProvider, error) {
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, nil)
	return &StripeProvider{intents: sc.PaymentIntents, currency: currency}, nil
}

// newWithAPI is the test seam.
func newWithAPI(api stripeIntentAPI, currency string) *StripeProvider {
	return &StripeProvider{intents: api, currency: currency}
}

// CreateSession registers a payment intent for the order and returns the
// intent ID. amountMinor is in the currency's minor units.
func (p *StripeProvider) CreateSession(ctx context.Context, orderID string, amountMinor int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(p.currency),
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID)

	intent, err := p.intents.New(params)
	if err != nil {
		return "", errors.Wrapf(err, "create payment intent for order %s", orderID)
	}
	return intent.ID, nil
}
