package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"goflare.io/checkout/gateway"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomePending   = "pending"
	outcomeNoop      = "noop"
)

// CheckoutSuccess settles the order behind sessionID from the gateway's view
// of the session, never from the browser's. Sessions belonging to another
// user are reported as not found.
func (sc *StripeCheckout) CheckoutSuccess(ctx context.Context, userID, sessionID string) (*models.Order, error) {
	session, err := sc.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Metadata[metaUserID] != userID {
		return nil, fmt.Errorf("%w: checkout session %s", models.ErrNotFound, sessionID)
	}
	return sc.Reconcile(ctx, session)
}

// Reconcile brings the order for session in line with the payment outcome.
// It runs in one transaction with the order row locked; the status change is
// the last write, so any failure leaves the order pending and the call can be
// retried. Settled orders are returned unchanged.
func (sc *StripeCheckout) Reconcile(ctx context.Context, session *gateway.Session) (*models.Order, error) {
	var (
		settled *models.Order
		outcome string
	)
	err := sc.transactionManager.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := sc.order.LockBySessionID(ctx, session.ID)
		if err != nil {
			return err
		}
		settled = o

		if o.Status.IsTerminal() {
			outcome = outcomeNoop
			return nil
		}

		if !session.Paid() {
			if !session.Expired() {
				outcome = outcomePending
				return nil
			}
			settled, err = sc.failLocked(ctx, o)
			outcome = outcomeFailed
			return err
		}

		switch o.Type {
		case enum.OrderTypeCoupon:
			err = sc.fulfilCouponOrder(ctx, o)
		case enum.OrderTypeProduct:
			err = sc.fulfilProductOrder(ctx, o)
		default:
			err = fmt.Errorf("%w: order %s has unknown type %q", models.ErrInvalidState, o.ID, o.Type)
		}
		if err != nil {
			return err
		}

		settled, err = sc.order.Complete(ctx, o.ID)
		outcome = outcomeCompleted
		return err
	})
	if err != nil {
		sc.metrics.RecordReconciliation("error")
		sc.logger.Error("Failed to reconcile checkout session",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return nil, err
	}

	sc.metrics.RecordReconciliation(outcome)
	sc.afterSettle(settled, outcome)

	return settled, nil
}

// FailOrder marks the pending order for sessionID failed and returns any code
// it reserved to the pool. Settled orders are returned unchanged.
func (sc *StripeCheckout) FailOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	var (
		settled *models.Order
		outcome = outcomeNoop
	)
	err := sc.transactionManager.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err := sc.order.LockBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		settled = o
		if o.Status.IsTerminal() {
			return nil
		}

		settled, err = sc.failLocked(ctx, o)
		outcome = outcomeFailed
		return err
	})
	if err != nil {
		return nil, err
	}

	sc.metrics.RecordReconciliation(outcome)
	sc.afterSettle(settled, outcome)

	return settled, nil
}

func (sc *StripeCheckout) failLocked(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o.Type == enum.OrderTypeCoupon && o.Coupon != nil {
		err := sc.coupon.ReleaseCode(ctx, o.Coupon.CouponID, o.Coupon.Code)
		switch {
		case err == nil:
			sc.metrics.RecordRelease("payment_failed", 1)
		case errors.Is(err, models.ErrInvalidState):
			sc.logger.Warn("Reserved code no longer releasable",
				zap.String("order_id", o.ID),
				zap.String("code", o.Coupon.Code))
		default:
			return nil, err
		}
	}
	return sc.order.Fail(ctx, o.ID)
}

func (sc *StripeCheckout) fulfilCouponOrder(ctx context.Context, o *models.Order) error {
	if o.Coupon == nil {
		return fmt.Errorf("%w: coupon order %s has no reserved code", models.ErrInvalidState, o.ID)
	}
	return sc.coupon.CompletePurchase(ctx, o.Coupon.CouponID, o.Coupon.Code, o.UserID)
}

// fulfilProductOrder removes the purchased products from the cart and
// redeems the applied code. A code that can no longer be redeemed does not
// block a paid order.
func (sc *StripeCheckout) fulfilProductOrder(ctx context.Context, o *models.Order) error {
	for _, p := range o.Products {
		if _, err := sc.cart.Remove(ctx, o.UserID, p.ProductID); err != nil {
			return err
		}
	}

	if o.AppliedCoupon == nil {
		return nil
	}
	err := sc.coupon.RedeemCode(ctx, o.AppliedCoupon.CouponID, o.AppliedCoupon.Code, o.UserID)
	if errors.Is(err, models.ErrInvalidState) {
		sc.logger.Warn("Applied coupon code could not be redeemed for paid order",
			zap.String("order_id", o.ID),
			zap.String("code", o.AppliedCoupon.Code),
			zap.Error(err))
		return nil
	}
	return err
}

func (sc *StripeCheckout) afterSettle(o *models.Order, outcome string) {
	if o == nil || (outcome != outcomeCompleted && outcome != outcomeFailed) {
		return
	}

	sc.logger.Info("Order settled",
		zap.String("order_id", o.ID),
		zap.String("session_id", o.GatewaySessionID),
		zap.String("status", string(o.Status)))

	if err := sc.eventManager.PublishOrderEvent(o); err != nil {
		sc.logger.Error("Failed to publish order event",
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

// sweepOrder settles a pending order whose session should have ended. An
// open unpaid session is expired at the gateway first, then the order is
// reconciled against the session's final state.
func (sc *StripeCheckout) sweepOrder(ctx context.Context, o *models.Order) (string, error) {
	session, err := sc.gateway.RetrieveSession(ctx, o.GatewaySessionID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		if _, err = sc.FailOrder(ctx, o.GatewaySessionID); err != nil {
			return "", err
		}
		return outcomeFailed, nil
	case err != nil:
		return "", err
	}

	if !session.Paid() && !session.Expired() {
		if err = sc.gateway.ExpireSession(ctx, session.ID); err != nil {
			return "", err
		}
		if session, err = sc.gateway.RetrieveSession(ctx, session.ID); err != nil {
			return "", err
		}
	}

	settled, err := sc.Reconcile(ctx, session)
	if err != nil {
		return "", err
	}
	return string(settled.Status), nil
}
