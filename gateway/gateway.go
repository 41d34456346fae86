package gateway

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
)

// Gateway is the slice of the payment processor the checkout flow talks to.
type Gateway interface {
	CreateSession(ctx context.Context, params *SessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
	ExpireSession(ctx context.Context, id string) error
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type LineItem struct {
	Name       string
	Images     []string
	UnitAmount int64 // cents
	Quantity   int64
}

type SessionParams struct {
	LineItems      []LineItem
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	Metadata       map[string]string
	ExpiresAt      time.Time
	IdempotencyKey string
}

type Session struct {
	ID            string
	URL           string
	Status        stripe.CheckoutSessionStatus
	PaymentStatus stripe.CheckoutSessionPaymentStatus
	AmountTotal   int64
	Metadata      map[string]string
}

// Paid reports whether the buyer has settled the session.
func (s *Session) Paid() bool {
	return s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// Expired reports whether the session can no longer be paid.
func (s *Session) Expired() bool {
	return s.Status == stripe.CheckoutSessionStatusExpired
}

// Total is the session amount in currency units.
func (s *Session) Total() float64 {
	return float64(s.AmountTotal) / 100
}

func SessionFromStripe(cs *stripe.CheckoutSession) *Session {
	if cs == nil {
		return nil
	}
	metadata := cs.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		Status:        cs.Status,
		PaymentStatus: cs.PaymentStatus,
		AmountTotal:   cs.AmountTotal,
		Metadata:      metadata,
	}
}
