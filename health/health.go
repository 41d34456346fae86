package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"goflare.io/checkout/driver"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker probes one dependency.
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

type Health struct {
	checkers []Checker
}

func New(checkers ...Checker) *Health {
	return &Health{checkers: checkers}
}

// ProvideHealth registers the checkers for every backing service.
func ProvideHealth(pool driver.PostgresPool, rdb *redis.Client, nc *nats.Conn) *Health {
	return New(
		NewPostgresChecker(pool),
		NewRedisChecker(rdb),
		NewNATSChecker(nc),
	)
}

// Check runs every checker. The report is unhealthy if any component is,
// degraded if any component is degraded.
func (h *Health) Check(ctx context.Context) Report {
	report := Report{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(h.checkers)),
	}

	for _, checker := range h.checkers {
		result := checker.Check(ctx)
		report.Components[checker.Name()] = result

		switch {
		case result.Status == StatusUnhealthy:
			report.Status = StatusUnhealthy
		case result.Status == StatusDegraded && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}

	return report
}

type PostgresChecker struct {
	pool driver.PostgresPool
}

func NewPostgresChecker(pool driver.PostgresPool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

func (p *PostgresChecker) Name() string { return "postgres" }

func (p *PostgresChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := p.pool.Ping(ctx)
	return result(err, time.Since(start), StatusUnhealthy)
}

// RedisChecker reports degraded rather than unhealthy: without redis the
// coupon cache is bypassed and only the sweep lock is lost.
type RedisChecker struct {
	rdb *redis.Client
}

func NewRedisChecker(rdb *redis.Client) *RedisChecker {
	return &RedisChecker{rdb: rdb}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Check(ctx context.Context) ComponentHealth {
	if r.rdb == nil {
		return ComponentHealth{Status: StatusDegraded, Message: "not configured"}
	}
	start := time.Now()
	err := r.rdb.Ping(ctx).Err()
	return result(err, time.Since(start), StatusDegraded)
}

type NATSChecker struct {
	nc *nats.Conn
}

func NewNATSChecker(nc *nats.Conn) *NATSChecker {
	return &NATSChecker{nc: nc}
}

func (n *NATSChecker) Name() string { return "nats" }

func (n *NATSChecker) Check(context.Context) ComponentHealth {
	if n.nc == nil {
		return ComponentHealth{Status: StatusDegraded, Message: "not connected"}
	}
	if status := n.nc.Status(); status != nats.CONNECTED {
		return ComponentHealth{Status: StatusDegraded, Message: status.String()}
	}
	return ComponentHealth{Status: StatusHealthy, Message: "connected"}
}

func result(err error, latency time.Duration, failure Status) ComponentHealth {
	if err != nil {
		return ComponentHealth{
			Status:  failure,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Status:  StatusHealthy,
		Latency: latency.String(),
	}
}
