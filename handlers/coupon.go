package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/checkout"
	"goflare.io/checkout/coupon"
	"goflare.io/checkout/models"
)

type CouponHandler interface {
	ApplyCoupon(c echo.Context) error
	ClaimCoupon(c echo.Context) error
	ListOwnedCoupons(c echo.Context) error

	CreateCoupon(c echo.Context) error
	GetCoupon(c echo.Context) error
	ListCoupons(c echo.Context) error
	UpdateCoupon(c echo.Context) error
	DeleteCoupon(c echo.Context) error
}

type couponHandler struct {
	Checkout checkout.Checkout
	Coupon   coupon.Service
	Logger   *zap.Logger
}

func NewCouponHandler(checkout checkout.Checkout, coupons coupon.Service, logger *zap.Logger) CouponHandler {
	return &couponHandler{
		Checkout: checkout,
		Coupon:   coupons,
		Logger:   logger,
	}
}

type applyCouponRequest struct {
	CouponCode        string  `json:"couponCode" validate:"required"`
	CurrentOrderTotal float64 `json:"currentOrderTotal" validate:"gte=0"`
}

type claimCouponRequest struct {
	CouponID string `json:"couponId" validate:"required"`
}

func (ch *couponHandler) ApplyCoupon(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	var req applyCouponRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	applied, err := ch.Checkout.ApplyCoupon(c.Request().Context(), user.ID, req.CouponCode, req.CurrentOrderTotal)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message":        "Coupon applied successfully.",
		"discountAmount": applied.DiscountAmount,
		"newOrderTotal":  applied.NewOrderTotal,
		"appliedCoupon":  applied.Coupon,
	})
}

func (ch *couponHandler) ClaimCoupon(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	var req claimCouponRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	claimed, err := ch.Checkout.ClaimFreeCoupon(c.Request().Context(), user.ID, req.CouponID)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Coupon claimed successfully.",
		"coupon":  claimed.Coupon,
		"code":    claimed.Code,
	})
}

func (ch *couponHandler) ListOwnedCoupons(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	owned, err := ch.Coupon.ListOwned(c.Request().Context(), user.ID)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, owned)
}

func (ch *couponHandler) CreateCoupon(c echo.Context) error {
	var req models.CreateCouponRequest
	if err := bind(c, &req); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	created, err := ch.Coupon.Create(c.Request().Context(), &req)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	ch.Logger.Info("Coupon created",
		zap.String("coupon_id", created.ID),
		zap.Int("codes", req.TotalCodes))

	return c.JSON(http.StatusCreated, created)
}

func (ch *couponHandler) GetCoupon(c echo.Context) error {
	found, err := ch.Coupon.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, found)
}

func (ch *couponHandler) ListCoupons(c echo.Context) error {
	coupons, err := ch.Coupon.List(c.Request().Context())
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, coupons)
}

func (ch *couponHandler) UpdateCoupon(c echo.Context) error {
	var partial models.PartialCoupon
	if err := c.Bind(&partial); err != nil {
		return errorResponse(c, ch.Logger, models.NewValidationError("Invalid request payload."))
	}

	updated, err := ch.Coupon.Update(c.Request().Context(), c.Param("id"), &partial)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, updated)
}

func (ch *couponHandler) DeleteCoupon(c echo.Context) error {
	if err := ch.Coupon.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.NoContent(http.StatusNoContent)
}
