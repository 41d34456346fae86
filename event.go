package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/checkout/gateway"
	"goflare.io/checkout/models"
)

type EventHandler func(context.Context, *stripe.Event) error

// EventManager routes verified gateway events to their handlers and
// publishes settled orders on the message bus.
type EventManager struct {
	natsConn *nats.Conn
	subject  string
	handlers map[stripe.EventType]EventHandler
	logger   *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, subject string, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: natsConn,
		subject:  subject,
		handlers: make(map[stripe.EventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType stripe.EventType, handler EventHandler) {
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType stripe.EventType) (EventHandler, bool) {
	handler, exists := em.handlers[eventType]
	return handler, exists
}

// PublishOrderEvent sends the order's final state to <subject>.<status>.
// Without a bus connection the event is only logged.
func (em *EventManager) PublishOrderEvent(order *models.Order) error {
	evt := orderEvent(order)
	subject := fmt.Sprintf("%s.%s", em.subject, evt.Status)

	if em.natsConn == nil {
		em.logger.Debug("Message bus not connected, order event dropped",
			zap.String("subject", subject),
			zap.String("order_id", order.ID))
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	return em.natsConn.Publish(subject, data)
}

func orderEvent(order *models.Order) *models.OrderEvent {
	evt := &models.OrderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Type:       string(order.Type),
		Status:     string(order.Status),
		Total:      order.TotalAmount,
		OccurredAt: time.Now().UTC(),
	}
	switch {
	case order.Coupon != nil:
		evt.CouponID = order.Coupon.CouponID
		evt.Code = order.Coupon.Code
	case order.AppliedCoupon != nil:
		evt.CouponID = order.AppliedCoupon.CouponID
		evt.Code = order.AppliedCoupon.Code
	}
	return evt
}

func (sc *StripeCheckout) registerEventHandlers() {
	eventHandlers := map[stripe.EventType]EventHandler{
		stripe.EventTypeCheckoutSessionCompleted:             sc.handleSessionSettled,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded: sc.handleSessionSettled,
		stripe.EventTypeCheckoutSessionExpired:               sc.handleSessionSettled,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:    sc.handleSessionPaymentFailed,
	}

	for eventType, handler := range eventHandlers {
		sc.eventManager.RegisterHandler(eventType, handler)
	}
}

// HandleStripeWebhook verifies and applies one gateway event. Events seen
// before are acknowledged without effect; a handler error is returned so the
// gateway redelivers.
func (sc *StripeCheckout) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	stripeEvent, err := sc.gateway.ConstructEvent(payload, signature)
	if err != nil {
		sc.metrics.RecordWebhookEvent("unknown", "invalid_signature")
		return err
	}

	handler, ok := sc.eventManager.GetHandler(stripeEvent.Type)
	if !ok {
		sc.logger.Debug("Ignoring unhandled event type",
			zap.String("event_id", stripeEvent.ID),
			zap.String("event_type", string(stripeEvent.Type)))
		sc.metrics.RecordWebhookEvent(string(stripeEvent.Type), "ignored")
		return nil
	}

	processed, err := sc.event.IsEventProcessed(ctx, stripeEvent.ID)
	if err != nil {
		return fmt.Errorf("failed to check event state: %w", err)
	}
	if processed {
		sc.logger.Info("Event is already processed", zap.String("event_id", stripeEvent.ID))
		sc.metrics.RecordWebhookEvent(string(stripeEvent.Type), "duplicate")
		return nil
	}

	now := time.Now()
	if err = sc.event.Create(ctx, &models.Event{
		ID:        stripeEvent.ID,
		Type:      stripeEvent.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if err = handler(ctx, &stripeEvent); err != nil {
		sc.logger.Error("Failed to process event",
			zap.String("event_id", stripeEvent.ID),
			zap.String("event_type", string(stripeEvent.Type)),
			zap.Error(err))
		sc.metrics.RecordWebhookEvent(string(stripeEvent.Type), "error")
		return err
	}

	if err = sc.event.MarkEventAsProcessed(ctx, stripeEvent.ID); err != nil {
		sc.logger.Error("Failed to mark event as processed", zap.Error(err))
		return err
	}

	sc.metrics.RecordWebhookEvent(string(stripeEvent.Type), "processed")
	sc.logger.Info("Stripe event processed",
		zap.String("event_id", stripeEvent.ID),
		zap.String("event_type", string(stripeEvent.Type)))

	return nil
}

func (sc *StripeCheckout) handleSessionSettled(ctx context.Context, stripeEvent *stripe.Event) error {
	session, err := sessionFromEvent(stripeEvent)
	if err != nil {
		return err
	}

	_, err = sc.Reconcile(ctx, session)
	return ignoreUnknownSession(err, session.ID, sc.logger)
}

func (sc *StripeCheckout) handleSessionPaymentFailed(ctx context.Context, stripeEvent *stripe.Event) error {
	session, err := sessionFromEvent(stripeEvent)
	if err != nil {
		return err
	}

	_, err = sc.FailOrder(ctx, session.ID)
	return ignoreUnknownSession(err, session.ID, sc.logger)
}

func sessionFromEvent(stripeEvent *stripe.Event) (*gateway.Session, error) {
	if stripeEvent.Data == nil {
		return nil, fmt.Errorf("checkout session event %s carries no data", stripeEvent.ID)
	}
	cs := new(stripe.CheckoutSession)
	if err := json.Unmarshal(stripeEvent.Data.Raw, cs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session event: %w", err)
	}
	if cs.ID == "" {
		return nil, fmt.Errorf("checkout session event %s carries no session id", stripeEvent.ID)
	}
	return gateway.SessionFromStripe(cs), nil
}

// Sessions without an order were never persisted on our side; redelivery
// would not change that.
func ignoreUnknownSession(err error, sessionID string, logger *zap.Logger) error {
	if errors.Is(err, models.ErrNotFound) {
		logger.Warn("No order for checkout session", zap.String("session_id", sessionID))
		return nil
	}
	return err
}
