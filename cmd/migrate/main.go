package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"goflare.io/checkout/driver"
)

func main() {
	databaseURL := flag.String("database", os.Getenv("CHECKOUT_POSTGRES_URL"), "postgres connection url")
	source := flag.String("source", "file://migrations", "migration source url")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if *databaseURL == "" {
		logger.Fatal("database url is required (-database or CHECKOUT_POSTGRES_URL)")
	}

	if err := driver.Migrate(*databaseURL, *source); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}

	logger.Info("Migration successful", zap.String("source", *source))
}
