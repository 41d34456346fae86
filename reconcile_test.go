package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

func TestReconcile_CouponOrderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := openCouponOrder(t, h)
	h.coupons.On("CompletePurchase", mock.Anything, "c1", "ABCD1234", "u1").Return(nil).Once()
	h.gw.pay(res.ID)

	first, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusCompleted, first.Status)
	assert.True(t, h.pool.Last().Committed())

	second, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusCompleted, second.Status)

	h.coupons.AssertNumberOfCalls(t, "CompletePurchase", 1)
}

func TestReconcile_FulfilmentErrorLeavesOrderPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := openCouponOrder(t, h)
	h.coupons.On("CompletePurchase", mock.Anything, "c1", "ABCD1234", "u1").Return(errors.New("deadlock detected")).Once()
	h.gw.pay(res.ID)

	_, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))

	require.Error(t, err)
	assert.Equal(t, enum.OrderStatusPending, h.orders.status(res.OrderID))
	assert.True(t, h.pool.Last().RolledBack())
}

func TestReconcile_Unpaid(t *testing.T) {
	ctx := context.Background()

	t.Run("open session stays pending", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)

		order, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))

		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusPending, order.Status)
		h.coupons.AssertNotCalled(t, "ReleaseCode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired session fails and releases", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.coupons.On("ReleaseCode", mock.Anything, "c1", "ABCD1234").Return(nil).Once()
		require.NoError(t, h.gw.ExpireSession(ctx, res.ID))

		order, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))

		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusFailed, order.Status)
		h.coupons.AssertExpectations(t)
	})

	t.Run("failed order is terminal", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.coupons.On("ReleaseCode", mock.Anything, "c1", "ABCD1234").Return(nil).Once()
		_, err := h.sc.FailOrder(ctx, res.ID)
		require.NoError(t, err)
		h.gw.pay(res.ID)

		order, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))

		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusFailed, order.Status)
		h.coupons.AssertNotCalled(t, "CompletePurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReconcile_ProductOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("clears cart and redeems code", func(t *testing.T) {
		h := newHarness(t)
		res := openProductOrder(t, h)
		h.carts.On("Remove", mock.Anything, "u1", "p1").Return(&models.Cart{}, nil).Once()
		h.carts.On("Remove", mock.Anything, "u1", "p2").Return(&models.Cart{}, nil).Once()
		h.coupons.On("RedeemCode", mock.Anything, "c2", "SAVE5", "u1").Return(nil).Once()
		h.gw.pay(res.ID)

		order, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))

		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusCompleted, order.Status)
		h.carts.AssertExpectations(t)
		h.coupons.AssertExpectations(t)
	})

	t.Run("unredeemable code does not block a paid order", func(t *testing.T) {
		h := newHarness(t)
		res := openProductOrder(t, h)
		h.carts.On("Remove", mock.Anything, "u1", mock.Anything).Return(&models.Cart{}, nil)
		h.coupons.On("RedeemCode", mock.Anything, "c2", "SAVE5", "u1").Return(models.ErrInvalidState)
		h.gw.pay(res.ID)

		order, err := h.sc.Reconcile(ctx, h.gw.session(res.ID))

		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusCompleted, order.Status)
	})
}

func TestCheckoutSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("owner sees completed order", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.coupons.On("CompletePurchase", mock.Anything, "c1", "ABCD1234", "u1").Return(nil).Once()
		h.gw.pay(res.ID)

		order, err := h.sc.CheckoutSuccess(ctx, "u1", res.ID)

		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusCompleted, order.Status)
	})

	t.Run("another user's session", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.gw.pay(res.ID)

		_, err := h.sc.CheckoutSuccess(ctx, "u2", res.ID)

		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.Equal(t, enum.OrderStatusPending, h.orders.status(res.OrderID))
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.sc.CheckoutSuccess(ctx, "u1", "cs_missing")

		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("fails abandoned order and releases its code", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.sc.now = func() time.Time { return time.Now().Add(time.Hour) }
		h.coupons.On("ReleaseCode", mock.Anything, "c1", "ABCD1234").Return(nil).Once()
		h.coupons.On("ReleaseStale", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(2), nil)
		h.coupons.On("DeactivateExpired", mock.Anything).Return(1, nil)

		require.NoError(t, h.sc.SweepExpired(ctx))

		assert.Equal(t, enum.OrderStatusFailed, h.orders.status(res.OrderID))
		assert.Equal(t, []string{res.ID}, h.gw.expired)
		assert.Equal(t, stripe.CheckoutSessionStatusExpired, h.gw.session(res.ID).Status)
		h.coupons.AssertExpectations(t)
	})

	t.Run("completes order paid but never reconciled", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.gw.pay(res.ID)
		h.sc.now = func() time.Time { return time.Now().Add(time.Hour) }
		h.coupons.On("CompletePurchase", mock.Anything, "c1", "ABCD1234", "u1").Return(nil).Once()
		h.coupons.On("ReleaseStale", mock.Anything, mock.Anything).Return(int64(0), nil)
		h.coupons.On("DeactivateExpired", mock.Anything).Return(0, nil)

		require.NoError(t, h.sc.SweepExpired(ctx))

		assert.Equal(t, enum.OrderStatusCompleted, h.orders.status(res.OrderID))
		assert.Empty(t, h.gw.expired)
	})

	t.Run("recent orders are left alone", func(t *testing.T) {
		h := newHarness(t)
		res := openCouponOrder(t, h)
		h.sc.now = time.Now
		h.coupons.On("ReleaseStale", mock.Anything, mock.Anything).Return(int64(0), nil)
		h.coupons.On("DeactivateExpired", mock.Anything).Return(0, nil)

		require.NoError(t, h.sc.SweepExpired(ctx))

		assert.Equal(t, enum.OrderStatusPending, h.orders.status(res.OrderID))
		assert.Empty(t, h.gw.expired)
	})
}
