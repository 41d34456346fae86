package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"goflare.io/checkout/coupon"
	"goflare.io/checkout/driver"
	"goflare.io/checkout/metrics"
	"goflare.io/ember"
	emberConfig "goflare.io/ember/config"
	"goflare.io/ignite"
)

const (
	ServerStartPort   = ":8080"
	defaultConfigFile = "./config.yaml"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	App       AppConfig       `mapstructure:"app"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
}

type PostgresConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	Migrations  string `mapstructure:"migrations"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type AppConfig struct {
	Env       string `mapstructure:"env"`
	ClientURL string `mapstructure:"client_url"`
}

type SweepConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	BatchSize      int           `mapstructure:"batch_size"`
	Workers        int           `mapstructure:"workers"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	ExpiresIn         time.Duration `mapstructure:"expires_in"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ServerStartPort)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("postgres.migrations", "file://migrations")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("nats.url", nats.DefaultURL)
	v.SetDefault("nats.subject", "checkout.order")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.client_url", "http://localhost:5173")
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.reservation_ttl", 45*time.Minute)
	v.SetDefault("sweep.session_ttl", 35*time.Minute)
	v.SetDefault("sweep.lock_ttl", 50*time.Second)
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("sweep.workers", 4)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.expires_in", 3*time.Minute)
}

func ProvideApplicationConfig() (*Config, error) {
	file := os.Getenv("CONFIG_FILE")
	if file == "" {
		file = defaultConfigFile
	}
	return Load(file)
}

// Load reads the yaml file at path, lets CHECKOUT_* environment variables
// override it and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("checkout")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Postgres.URL == "":
		return fmt.Errorf("config: postgres.url is required")
	case c.Stripe.SecretKey == "":
		return fmt.Errorf("config: stripe.secret_key is required")
	case c.Stripe.WebhookSecret == "":
		return fmt.Errorf("config: stripe.webhook_secret is required")
	case c.Auth.JWTSecret == "":
		return fmt.Errorf("config: auth.jwt_secret is required")
	case c.Sweep.ReservationTTL <= c.Sweep.SessionTTL:
		return fmt.Errorf("config: sweep.reservation_ttl (%s) must exceed sweep.session_ttl (%s)",
			c.Sweep.ReservationTTL, c.Sweep.SessionTTL)
	case c.Sweep.SessionTTL < 30*time.Minute || c.Sweep.SessionTTL > 24*time.Hour:
		return fmt.Errorf("config: sweep.session_ttl must be between 30m and 24h")
	}
	return nil
}

func ProvidePostgresConn(appConfig *Config, logger *zap.Logger) (driver.PostgresPool, func(), error) {
	if appConfig.Postgres.AutoMigrate {
		if err := driver.Migrate(appConfig.Postgres.URL, appConfig.Postgres.Migrations); err != nil {
			return nil, nil, err
		}
		logger.Info("Database migrations applied")
	}

	conn, err := driver.ConnectSQL(appConfig.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}

	return conn.Pool, conn.Pool.Close, nil
}

func ProvideRedis(appConfig *Config) (*redis.Client, func(), error) {
	rdb, err := driver.ConnectRedis(appConfig.Redis.Addr, appConfig.Redis.Password, appConfig.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

func ProvideEmber(rdb *redis.Client, logger *zap.Logger) (*ember.MultiCache, error) {
	config := emberConfig.NewConfig()
	cache, err := ember.NewMultiCache(context.Background(), &config, rdb)
	if err != nil {
		logger.Error("failed to create cache", zap.Error(err))
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return cache, nil
}

func ProvideIgnite() ignite.Manager {
	return ignite.NewManager()
}

func ProvideCouponCache(cache *ember.MultiCache, collector *metrics.Collector, logger *zap.Logger) *coupon.Cache {
	return coupon.NewCache(cache, collector, logger)
}

// ProvideNATS connects to the message bus. The service keeps running
// without it; order events are then only logged.
func ProvideNATS(appConfig *Config, logger *zap.Logger) (*nats.Conn, func()) {
	nc, err := nats.Connect(appConfig.NATS.URL,
		nats.Name("checkout"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Error("error connecting to nats", zap.Error(err))
		return nil, func() {}
	}
	return nc, func() { _ = nc.Drain() }
}

func NewLogger(appConfig *Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if appConfig.App.Env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
