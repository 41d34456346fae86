package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"goflare.io/checkout/health"
)

type HealthHandler interface {
	Health(c echo.Context) error
}

type healthHandler struct {
	Checker *health.Health
}

func NewHealthHandler(h *health.Health) HealthHandler {
	return &healthHandler{Checker: h}
}

// Health reports 503 only when a required component is down; a degraded
// cache or bus still answers 200.
func (hh *healthHandler) Health(c echo.Context) error {
	report := hh.Checker.Check(c.Request().Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}
