package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/checkout/models"
)

const userContextKey = "user"

// SetUser stores the authenticated caller on the request context.
func SetUser(c echo.Context, user *models.User) {
	c.Set(userContextKey, user)
}

// CurrentUser returns the caller stored by the auth middleware.
func CurrentUser(c echo.Context) (*models.User, error) {
	user, ok := c.Get(userContextKey).(*models.User)
	if !ok || user == nil || user.ID == "" {
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

// Validator plugs go-playground/validator into echo's c.Validate.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return models.NewValidationError(fmt.Sprintf("Field %s failed on the %q rule.", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
	}
	return nil
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return models.NewValidationError("Invalid request payload.")
	}
	return c.Validate(req)
}

func message(text string) map[string]string {
	return map[string]string{"message": text}
}

// errorResponse maps domain errors onto status codes. Anything unexpected is
// logged and reported as a bare server error.
func errorResponse(c echo.Context, logger *zap.Logger, err error) error {
	var validationErr *models.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, message(validationErr.Reason))
	case errors.Is(err, models.ErrValidationFailed):
		return c.JSON(http.StatusBadRequest, message("Invalid request."))
	case errors.Is(err, models.ErrInvalidSignature):
		return c.JSON(http.StatusBadRequest, message("Invalid signature."))
	case errors.Is(err, models.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, message("Unauthorized."))
	case errors.Is(err, models.ErrNotFound):
		return c.JSON(http.StatusNotFound, message("Not found."))
	case errors.Is(err, models.ErrExhausted):
		return c.JSON(http.StatusConflict, message("No codes left for this coupon."))
	case errors.Is(err, models.ErrInvalidState):
		return c.JSON(http.StatusConflict, message("The request conflicts with the current state."))
	case errors.Is(err, models.ErrGateway):
		logger.Error("Payment gateway failure", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusBadGateway, message("Payment provider unavailable."))
	default:
		logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, message("Server error"))
	}
}
