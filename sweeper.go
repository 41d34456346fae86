package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/checkout/config"
)

const sweepLockKey = "checkout:sweep:lock"

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Sweeper periodically settles pending orders whose checkout session should
// have ended, releases orphaned reservations and deactivates expired
// coupons. A redis lock keeps concurrent instances from sweeping at once.
type Sweeper struct {
	checkout       *StripeCheckout
	rdb            *redis.Client
	interval       time.Duration
	reservationTTL time.Duration
	lockTTL        time.Duration
	batchSize      int
	logger         *zap.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(checkout *StripeCheckout, rdb *redis.Client, cfg config.SweepConfig, logger *zap.Logger) *Sweeper {
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Sweeper{
		checkout:       checkout,
		rdb:            rdb,
		interval:       cfg.Interval,
		reservationTTL: cfg.ReservationTTL,
		lockTTL:        lockTTL,
		batchSize:      cfg.BatchSize,
		logger:         logger.Named("sweeper"),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start runs Sweep every interval until Stop. A zero interval disables the
// background loop.
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.lockTTL)
				if err := s.Sweep(ctx); err != nil {
					s.logger.Error("Sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// Sweep runs one pass. It returns nil without doing anything when another
// instance holds the lock.
func (s *Sweeper) Sweep(ctx context.Context) error {
	unlock, ok, err := s.lock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("Sweep lock held elsewhere, skipping")
		return nil
	}
	defer unlock()

	start := time.Now()
	defer func() { s.checkout.metrics.RecordSweep(time.Since(start)) }()

	cutoff := s.checkout.now().Add(-s.reservationTTL)

	orders, err := s.checkout.order.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list stale orders: %w", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, o := range orders {
		wg.Add(1)
		s.checkout.dispatcher.Submit(WorkRequest{
			Order: o,
			Ctx:   ctx,
			Done: func(err error) {
				if err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
				}
				wg.Done()
			},
		})
	}
	wg.Wait()

	released, err := s.checkout.coupon.ReleaseStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to release stale reservations: %w", err)
	}
	s.checkout.metrics.RecordRelease("stale", int(released))

	deactivated, err := s.checkout.coupon.DeactivateExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to deactivate expired coupons: %w", err)
	}

	s.logger.Info("Sweep finished",
		zap.Int("stale_orders", len(orders)),
		zap.Int("order_errors", failed),
		zap.Int64("released_codes", released),
		zap.Int("deactivated_coupons", deactivated),
		zap.Duration("took", time.Since(start)))

	return nil
}

func (s *Sweeper) lock(ctx context.Context) (func(), bool, error) {
	if s.rdb == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, sweepLockKey, token, s.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		err := unlockScript.Run(context.Background(), s.rdb, []string{sweepLockKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}, true, nil
}
