package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/checkout"
	"goflare.io/checkout/models"
	"goflare.io/checkout/models/enum"
)

type PaymentHandler interface {
	CreateCheckoutSession(c echo.Context) error
	CheckoutSuccess(c echo.Context) error
	ListOrders(c echo.Context) error
}

type paymentHandler struct {
	Checkout checkout.Checkout
	Logger   *zap.Logger
}

func NewPaymentHandler(checkout checkout.Checkout, logger *zap.Logger) PaymentHandler {
	return &paymentHandler{
		Checkout: checkout,
		Logger:   logger,
	}
}

type checkoutSuccessRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

func (ph *paymentHandler) CreateCheckoutSession(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	var req models.CheckoutRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	session, err := ph.Checkout.CreateCheckoutSession(c.Request().Context(), user, &req)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"id":  session.ID,
		"url": session.URL,
	})
}

func (ph *paymentHandler) CheckoutSuccess(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	var req checkoutSuccessRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	order, err := ph.Checkout.CheckoutSuccess(c.Request().Context(), user.ID, req.SessionID)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": order.Status == enum.OrderStatusCompleted,
		"message": successMessage(order.Status),
		"order":   order,
	})
}

func (ph *paymentHandler) ListOrders(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	orders, err := ph.Checkout.ListOrders(c.Request().Context(), user.ID)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	return c.JSON(http.StatusOK, orders)
}

func successMessage(status enum.OrderStatus) string {
	switch status {
	case enum.OrderStatusCompleted:
		return "Payment successful, order completed."
	case enum.OrderStatusFailed:
		return "Payment failed, the order was cancelled."
	default:
		return "Payment is still being processed."
	}
}
