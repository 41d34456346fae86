//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"goflare.io/checkout"
	"goflare.io/checkout/cart"
	"goflare.io/checkout/config"
	"goflare.io/checkout/coupon"
	"goflare.io/checkout/driver"
	"goflare.io/checkout/event"
	"goflare.io/checkout/gateway"
	"goflare.io/checkout/handlers"
	"goflare.io/checkout/health"
	"goflare.io/checkout/metrics"
	"goflare.io/checkout/order"
	"goflare.io/checkout/product"
	"goflare.io/checkout/server"
)

func InitializeServer() (*server.Server, func(), error) {

	wire.Build(
		config.ProvideApplicationConfig,
		config.NewLogger,
		config.ProvidePostgresConn,
		config.ProvideRedis,
		config.ProvideNATS,
		config.ProvideEmber,
		config.ProvideIgnite,
		config.ProvideCouponCache,
		metrics.NewRegistry,
		metrics.NewCollector,
		driver.NewTransactionManager,
		gateway.NewStripeGateway,
		coupon.NewRepository,
		coupon.NewService,
		product.NewRepository,
		product.NewService,
		cart.NewRepository,
		cart.NewService,
		order.NewRepository,
		order.NewService,
		event.NewRepository,
		event.NewService,
		checkout.NewStripeCheckout,
		health.ProvideHealth,
		handlers.NewCouponHandler,
		handlers.NewCartHandler,
		handlers.NewProductHandler,
		handlers.NewPaymentHandler,
		handlers.NewWebhookHandler,
		handlers.NewHealthHandler,
		server.NewServer,
	)

	return &server.Server{}, nil, nil
}
