package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"goflare.io/checkout/config"
	"goflare.io/checkout/models"
)

type stripeGateway struct {
	client        *client.API
	webhookSecret string
	currency      stripe.Currency
	logger        *zap.Logger
}

func NewStripeGateway(config *config.Config, logger *zap.Logger) Gateway {
	return &stripeGateway{
		client:        client.New(config.Stripe.SecretKey, nil),
		webhookSecret: config.Stripe.WebhookSecret,
		currency:      stripe.Currency(config.Stripe.Currency),
		logger:        logger,
	}
}

func (g *stripeGateway) CreateSession(ctx context.Context, p *SessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
	}
	params.Context = ctx

	for _, item := range p.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(g.currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:   stripe.String(item.Name),
					Images: stripe.StringSlice(item.Images),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if !p.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(p.ExpiresAt.Unix())
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	cs, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", models.ErrGateway, err)
	}

	g.logger.Info("Checkout session created",
		zap.String("session_id", cs.ID),
		zap.Int64("amount_total", cs.AmountTotal))

	return SessionFromStripe(cs), nil
}

func (g *stripeGateway) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := g.client.CheckoutSessions.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, fmt.Errorf("%w: checkout session %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to retrieve checkout session: %v", models.ErrGateway, err)
	}

	return SessionFromStripe(cs), nil
}

// ExpireSession closes an open session. Sessions that are already complete
// or expired are left alone.
func (g *stripeGateway) ExpireSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.client.CheckoutSessions.Expire(id, params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 400 {
			g.logger.Warn("Checkout session not expirable",
				zap.String("session_id", id),
				zap.String("reason", stripeErr.Msg))
			return nil
		}
		return fmt.Errorf("%w: failed to expire checkout session: %v", models.ErrGateway, err)
	}

	return nil
}

func (g *stripeGateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	return event, nil
}
