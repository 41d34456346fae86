package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/checkout/cart"
	"goflare.io/checkout/config"
	"goflare.io/checkout/coupon"
	"goflare.io/checkout/driver"
	"goflare.io/checkout/event"
	"goflare.io/checkout/gateway"
	"goflare.io/checkout/metrics"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
	"goflare.io/checkout/order"
)

const (
	metaUserID            = "user_id"
	metaType              = "type"
	metaOrderID           = "order_id"
	metaItemIDs           = "item_ids"
	metaCouponID          = "coupon_id"
	metaCode              = "code"
	metaAppliedCouponID   = "applied_coupon_id"
	metaAppliedCouponCode = "applied_coupon_code"
)

const (
	reasonEmptyCart       = "Your cart is empty."
	reasonCouponRequired  = "A coupon id is required."
	reasonClaimFree       = "Free coupons are claimed, not purchased."
	reasonUnknownCheckout = "Unknown checkout type."
)

type Checkout interface {
	ApplyCoupon(ctx context.Context, userID, code string, orderTotal float64) (*models.AppliedDiscount, error)
	ClaimFreeCoupon(ctx context.Context, userID, couponID string) (*models.ClaimedCoupon, error)

	CreateCheckoutSession(ctx context.Context, user *models.User, req *models.CheckoutRequest) (*models.CheckoutSession, error) // Interacts with Stripe
	CheckoutSuccess(ctx context.Context, userID, sessionID string) (*models.Order, error)                                       // Interacts with Stripe
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error

	Reconcile(ctx context.Context, session *gateway.Session) (*models.Order, error)
	FailOrder(ctx context.Context, sessionID string) (*models.Order, error)
	SweepExpired(ctx context.Context) error // Interacts with Stripe
	ListOrders(ctx context.Context, userID string) ([]*models.Order, error)

	Close()
}

type StripeCheckout struct {
	gateway            gateway.Gateway
	transactionManager *driver.TransactionManager
	eventManager       *EventManager
	dispatcher         *Dispatcher
	sweeper            *Sweeper
	metrics            *metrics.Collector
	logger             *zap.Logger

	clientURL  string
	sessionTTL time.Duration
	now        func() time.Time

	coupon coupon.Service
	cart   cart.Service
	order  order.Service
	event  event.Service
}

func NewStripeCheckout(config *config.Config,
	gw gateway.Gateway,
	tm *driver.TransactionManager,
	rdb *redis.Client,
	nc *nats.Conn,
	coupons coupon.Service,
	carts cart.Service,
	orders order.Service,
	events event.Service,
	collector *metrics.Collector,
	logger *zap.Logger) Checkout {
	sc := &StripeCheckout{
		gateway:            gw,
		transactionManager: tm,
		metrics:            collector,
		logger:             logger,
		clientURL:          strings.TrimRight(config.App.ClientURL, "/"),
		sessionTTL:         config.Sweep.SessionTTL,
		now:                time.Now,
		coupon:             coupons,
		cart:               carts,
		order:              orders,
		event:              events,
	}

	sc.eventManager = NewEventManager(nc, config.NATS.Subject, logger)
	sc.registerEventHandlers()

	sc.dispatcher = NewDispatcher(config.Sweep.Workers, config.Sweep.BatchSize, sc)
	sc.dispatcher.Run()

	sc.sweeper = NewSweeper(sc, rdb, config.Sweep, logger)
	sc.sweeper.Start()

	return sc
}

func (sc *StripeCheckout) ApplyCoupon(ctx context.Context, userID, code string, orderTotal float64) (*models.AppliedDiscount, error) {
	lines, err := sc.cart.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sc.coupon.Apply(ctx, userID, code, orderTotal, lines)
}

func (sc *StripeCheckout) ClaimFreeCoupon(ctx context.Context, userID, couponID string) (*models.ClaimedCoupon, error) {
	claimed, err := sc.coupon.ClaimFreeCoupon(ctx, couponID, userID)
	sc.recordReservation(err)
	return claimed, err
}

// CreateCheckoutSession prices the request, reserves a code for coupon
// purchases, opens a gateway session and stores the pending order. The
// reservation is returned to the pool if the session or the order cannot be
// created.
func (sc *StripeCheckout) CreateCheckoutSession(ctx context.Context, user *models.User, req *models.CheckoutRequest) (*models.CheckoutSession, error) {
	orderID := uuid.NewString()
	newOrder := &models.Order{
		ID:     orderID,
		UserID: user.ID,
		Type:   req.Type,
		Status: enum.OrderStatusPending,
	}
	metadata := map[string]string{
		metaUserID:  user.ID,
		metaType:    string(req.Type),
		metaOrderID: orderID,
	}

	var (
		items    []gateway.LineItem
		reserved *models.CouponCode
		err      error
	)
	switch req.Type {
	case enum.OrderTypeProduct:
		items, err = sc.productCheckout(ctx, user.ID, req, newOrder, metadata)
	case enum.OrderTypeCoupon:
		items, reserved, err = sc.couponCheckout(ctx, user.ID, req, newOrder, metadata)
	default:
		err = models.NewValidationError(reasonUnknownCheckout)
	}
	if err != nil {
		return nil, err
	}

	newOrder.TotalAmount = float64(lineItemsTotal(items)) / 100

	session, err := sc.gateway.CreateSession(ctx, &gateway.SessionParams{
		LineItems:      items,
		SuccessURL:     sc.clientURL + "/purchase-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      sc.clientURL + "/purchase-cancel",
		CustomerEmail:  user.Email,
		Metadata:       metadata,
		ExpiresAt:      sc.now().Add(sc.sessionTTL),
		IdempotencyKey: orderID,
	})
	if err != nil {
		sc.releaseReservation(ctx, reserved, "gateway_error")
		if !errors.Is(err, models.ErrGateway) {
			err = fmt.Errorf("%w: %v", models.ErrGateway, err)
		}
		return nil, err
	}

	newOrder.GatewaySessionID = session.ID
	if session.AmountTotal > 0 {
		newOrder.TotalAmount = session.Total()
	}

	if err = sc.order.Create(ctx, newOrder); err != nil {
		sc.logger.Error("Failed to persist order for checkout session",
			zap.String("order_id", orderID),
			zap.String("session_id", session.ID),
			zap.Error(err))
		if expErr := sc.gateway.ExpireSession(ctx, session.ID); expErr != nil {
			sc.logger.Error("Failed to expire orphaned checkout session",
				zap.String("session_id", session.ID),
				zap.Error(expErr))
		}
		sc.releaseReservation(ctx, reserved, "order_error")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	sc.logger.Info("Checkout session opened",
		zap.String("order_id", orderID),
		zap.String("session_id", session.ID),
		zap.String("type", string(req.Type)),
		zap.Float64("total", newOrder.TotalAmount))

	return &models.CheckoutSession{
		ID:      session.ID,
		URL:     session.URL,
		OrderID: orderID,
	}, nil
}

func (sc *StripeCheckout) productCheckout(ctx context.Context, userID string, req *models.CheckoutRequest, o *models.Order, metadata map[string]string) ([]gateway.LineItem, error) {
	lines, err := sc.cart.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines = selectLines(lines, req.Items)
	if len(lines) == 0 {
		return nil, models.NewValidationError(reasonEmptyCart)
	}

	ids := make([]string, 0, len(lines))
	o.Products = make([]models.OrderProduct, 0, len(lines))
	for _, line := range lines {
		name, _ := lineLabel(line)
		ids = append(ids, line.ProductID)
		o.Products = append(o.Products, models.OrderProduct{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
		})
	}
	metadata[metaItemIDs] = strings.Join(ids, ",")

	if req.AppliedCoupon == nil || coupon.NormalizeCode(req.AppliedCoupon.Code) == "" {
		return buildLineItems(lines, "", 0), nil
	}

	subtotal, _ := models.CartSubtotal(lines).Float64()
	applied, err := sc.coupon.Apply(ctx, userID, req.AppliedCoupon.Code, subtotal, lines)
	if err != nil {
		return nil, err
	}

	o.AppliedCoupon = &models.AppliedCoupon{
		CouponID:       applied.Coupon.ID,
		Code:           applied.Code,
		DiscountAmount: applied.DiscountAmount,
	}
	metadata[metaAppliedCouponID] = applied.Coupon.ID
	metadata[metaAppliedCouponCode] = applied.Code

	return buildLineItems(lines, applied.Coupon.Category, applied.DiscountAmount), nil
}

func (sc *StripeCheckout) couponCheckout(ctx context.Context, userID string, req *models.CheckoutRequest, o *models.Order, metadata map[string]string) ([]gateway.LineItem, *models.CouponCode, error) {
	if len(req.Items) == 0 || req.Items[0] == "" {
		return nil, nil, models.NewValidationError(reasonCouponRequired)
	}
	couponID := req.Items[0]

	c, err := sc.coupon.GetByID(ctx, couponID)
	if err != nil {
		return nil, nil, err
	}
	if !c.Redeemable(sc.now()) {
		return nil, nil, models.NewValidationError(coupon.ReasonInactive)
	}
	if c.IsFree {
		return nil, nil, models.NewValidationError(reasonClaimFree)
	}
	if c.UsageLimitPerUser > 0 {
		owned, err := sc.coupon.CountOwned(ctx, userID, couponID)
		if err != nil {
			return nil, nil, err
		}
		if owned >= c.UsageLimitPerUser {
			return nil, nil, models.NewValidationError(coupon.ReasonPurchaseLimit)
		}
	}

	reserved, err := sc.coupon.ReserveCode(ctx, couponID, userID)
	sc.recordReservation(err)
	if err != nil {
		return nil, nil, err
	}

	o.Coupon = &models.OrderCoupon{
		CouponID: couponID,
		Code:     reserved.Code,
		Price:    c.Price,
	}
	metadata[metaCouponID] = couponID
	metadata[metaCode] = reserved.Code

	var images []string
	if c.Image != "" {
		images = []string{c.Image}
	}
	return []gateway.LineItem{{
		Name:       c.Title,
		Images:     images,
		UnitAmount: toCents(c.Price),
		Quantity:   1,
	}}, reserved, nil
}

// selectLines keeps the cart lines whose product is in ids; no ids keeps all.
func selectLines(lines []*models.CartLine, ids []string) []*models.CartLine {
	if len(ids) == 0 {
		return lines
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := make([]*models.CartLine, 0, len(lines))
	for _, line := range lines {
		if _, ok := wanted[line.ProductID]; ok {
			selected = append(selected, line)
		}
	}
	return selected
}

func (sc *StripeCheckout) releaseReservation(ctx context.Context, reserved *models.CouponCode, reason string) {
	if reserved == nil {
		return
	}
	if err := sc.coupon.ReleaseCode(ctx, reserved.CouponID, reserved.Code); err != nil {
		sc.logger.Error("Failed to release coupon code",
			zap.String("coupon_id", reserved.CouponID),
			zap.String("code", reserved.Code),
			zap.Error(err))
		return
	}
	sc.metrics.RecordRelease(reason, 1)
}

func (sc *StripeCheckout) recordReservation(err error) {
	switch {
	case err == nil:
		sc.metrics.RecordReservation("reserved")
	case errors.Is(err, models.ErrExhausted):
		sc.metrics.RecordReservation("exhausted")
	}
}

func (sc *StripeCheckout) ListOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	return sc.order.ListByUser(ctx, userID)
}

func (sc *StripeCheckout) SweepExpired(ctx context.Context) error {
	return sc.sweeper.Sweep(ctx)
}

func (sc *StripeCheckout) Close() {
	sc.logger.Info("Initiating graceful shutdown of sweeper and dispatcher")
	sc.sweeper.Stop()
	sc.dispatcher.Stop()
	sc.logger.Info("StripeCheckout successfully shutdown")
}
