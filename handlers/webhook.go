package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/checkout"
	"goflare.io/checkout/models"
)

// maxWebhookBody matches the payload cap Stripe documents for webhook events.
const maxWebhookBody = 65536

type WebhookHandler interface {
	HandleStripeWebhook(c echo.Context) error
}

type webhookHandler struct {
	Checkout checkout.Checkout
	Logger   *zap.Logger
}

func NewWebhookHandler(checkout checkout.Checkout, logger *zap.Logger) WebhookHandler {
	return &webhookHandler{
		Checkout: checkout,
		Logger:   logger,
	}
}

func (wh *webhookHandler) HandleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	if err = wh.Checkout.HandleStripeWebhook(c.Request().Context(), payload, signature); err != nil {
		if errors.Is(err, models.ErrInvalidSignature) {
			wh.Logger.Warn("Rejected webhook with invalid signature", zap.Error(err))
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
		}
		wh.Logger.Error("Failed to handle webhook", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to handle webhook"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
