package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/checkout/cart"
)

type CartHandler interface {
	GetCart(c echo.Context) error
	AddToCart(c echo.Context) error
	UpdateQuantity(c echo.Context) error
	RemoveFromCart(c echo.Context) error
}

type cartHandler struct {
	Cart   cart.Service
	Logger *zap.Logger
}

func NewCartHandler(carts cart.Service, logger *zap.Logger) CartHandler {
	return &cartHandler{
		Cart:   carts,
		Logger: logger,
	}
}

type addToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// removeFromCartRequest leaves ProductID empty to clear the whole cart.
type removeFromCartRequest struct {
	ProductID string `json:"productId"`
}

func (ch *cartHandler) GetCart(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	userCart, err := ch.Cart.Get(c.Request().Context(), user.ID)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, userCart)
}

func (ch *cartHandler) AddToCart(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	var req addToCartRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	userCart, err := ch.Cart.Add(c.Request().Context(), user.ID, req.ProductID)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, userCart)
}

func (ch *cartHandler) UpdateQuantity(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	var req updateQuantityRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	userCart, err := ch.Cart.UpdateQuantity(c.Request().Context(), user.ID, c.Param("id"), req.Quantity)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, userCart)
}

func (ch *cartHandler) RemoveFromCart(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	var req removeFromCartRequest
	if err = bind(c, &req); err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	userCart, err := ch.Cart.Remove(c.Request().Context(), user.ID, req.ProductID)
	if err != nil {
		return errorResponse(c, ch.Logger, err)
	}

	return c.JSON(http.StatusOK, userCart)
}
