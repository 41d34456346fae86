package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"goflare.io/checkout"
	"goflare.io/checkout/config"
	"goflare.io/checkout/handlers"
	"goflare.io/checkout/metrics"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	registry *prometheus.Registry
	checkout checkout.Checkout

	Coupon  handlers.CouponHandler
	Cart    handlers.CartHandler
	Product handlers.ProductHandler
	Payment handlers.PaymentHandler
	Webhook handlers.WebhookHandler
	Health  handlers.HealthHandler
}

func NewServer(
	appConfig *config.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
	collector *metrics.Collector,
	checkout checkout.Checkout,
	Coupon handlers.CouponHandler,
	Cart handlers.CartHandler,
	Product handlers.ProductHandler,
	Payment handlers.PaymentHandler,
	Webhook handlers.WebhookHandler,
	Health handlers.HealthHandler,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()

	s := &Server{
		echo:     e,
		config:   appConfig,
		logger:   logger,
		metrics:  collector,
		registry: registry,
		checkout: checkout,
		Coupon:   Coupon,
		Cart:     Cart,
		Product:  Product,
		Payment:  Payment,
		Webhook:  Webhook,
		Health:   Health,
	}
	s.registerMiddlewares()
	s.registerRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests within
// the configured shutdown timeout and stops the background sweep.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("address", s.config.Server.Address))
		if err := s.Start(s.config.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.checkout.Close()
		return err
	case sig := <-quit:
		s.logger.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	err := s.echo.Shutdown(ctx)
	s.checkout.Close()
	return err
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(RequestLogger(s.logger))
	s.echo.Use(RecordMetrics(s.metrics))
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.Health.Health)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	s.echo.POST("/webhooks/payment", s.Webhook.HandleStripeWebhook)

	s.echo.GET("/api/products", s.Product.ListProducts)
	s.echo.GET("/api/products/:id", s.Product.GetProduct)

	api := s.echo.Group("/api", Authenticate(s.config.Auth.JWTSecret))
	limited := RateLimit(s.config.RateLimit)

	coupons := api.Group("/coupons")
	coupons.POST("/apply", s.Coupon.ApplyCoupon)
	coupons.POST("/claim", s.Coupon.ClaimCoupon, limited)
	coupons.GET("/owned", s.Coupon.ListOwnedCoupons)
	coupons.POST("", s.Coupon.CreateCoupon, RequireAdmin)
	coupons.GET("", s.Coupon.ListCoupons, RequireAdmin)
	coupons.GET("/:id", s.Coupon.GetCoupon, RequireAdmin)
	coupons.PUT("/:id", s.Coupon.UpdateCoupon, RequireAdmin)
	coupons.DELETE("/:id", s.Coupon.DeleteCoupon, RequireAdmin)

	cart := api.Group("/cart")
	cart.GET("", s.Cart.GetCart)
	cart.POST("", s.Cart.AddToCart)
	cart.PUT("/:id", s.Cart.UpdateQuantity)
	cart.DELETE("", s.Cart.RemoveFromCart)

	payments := api.Group("/payments")
	payments.POST("/create-checkout-session", s.Payment.CreateCheckoutSession, limited)
	payments.POST("/checkout-success", s.Payment.CheckoutSuccess)
	payments.GET("/orders", s.Payment.ListOrders)
}
