package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/checkout/models"
	"goflare.io/checkout/product"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ProductHandler interface {
	GetProduct(c echo.Context) error
	ListProducts(c echo.Context) error
}

type productHandler struct {
	Product product.Service
	Logger  *zap.Logger
}

func NewProductHandler(products product.Service, logger *zap.Logger) ProductHandler {
	return &productHandler{
		Product: products,
		Logger:  logger,
	}
}

func (ph *productHandler) GetProduct(c echo.Context) error {
	found, err := ph.Product.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	return c.JSON(http.StatusOK, found)
}

func (ph *productHandler) ListProducts(c echo.Context) error {
	limit, offset := uint64(defaultPageSize), uint64(0)
	if err := echo.QueryParamsBinder(c).
		Uint64("limit", &limit).
		Uint64("offset", &offset).
		BindError(); err != nil {
		return errorResponse(c, ph.Logger, models.NewValidationError("limit and offset must be non-negative integers."))
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	products, err := ph.Product.List(c.Request().Context(), limit, offset)
	if err != nil {
		return errorResponse(c, ph.Logger, err)
	}

	return c.JSON(http.StatusOK, products)
}
