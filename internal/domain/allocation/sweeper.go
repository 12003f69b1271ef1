// internal/domain/allocation/sweeper.go
package allocation

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/pkg/metrics"
)

// SweepResult summarizes one expiry cycle
type SweepResult struct {
	Skipped  bool          `json:"skipped"`
	Expired  int           `json:"expired"`
	Duration time.Duration `json:"duration"`
}

// Sweeper periodically expires lapsed reservations. With Redis configured,
// a short lease keeps all but one instance idle per interval.
type Sweeper struct {
	allocations *Service
	redisClient *redis.Client
	config      config.SweeperConfig
	log         logrus.FieldLogger
	instanceID  string

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewSweeper creates an expiry sweeper. redisClient may be nil.
func NewSweeper(allocations *Service, redisClient *redis.Client, cfg *config.Config, log logrus.FieldLogger) *Sweeper {
	host, _ := os.Hostname()
	return &Sweeper{
		allocations: allocations,
		redisClient: redisClient,
		config:      cfg.Sweeper,
		log:         log,
		instanceID:  fmt.Sprintf("%s-%s", host, uuid.New().String()[:8]),
	}
}

// Start launches the sweep loop. It runs one cycle immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	if s.config.Interval <= 0 {
		return fmt.Errorf("sweeper interval must be positive")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	s.log.WithFields(logrus.Fields{
		"interval":   s.config.Interval.String(),
		"batch_size": s.config.BatchSize,
		"instance":   s.instanceID,
	}).Info("Reservation expiry sweeper starting")

	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop ends the sweep loop and waits for an in-flight cycle to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.done)
	stopped := s.stopped
	s.running = false
	s.mu.Unlock()

	<-stopped
	s.log.Info("Reservation expiry sweeper stopped")
}

// RunNow executes one sweep cycle synchronously
func (s *Sweeper) RunNow(ctx context.Context) (SweepResult, error) {
	start := time.Now()

	acquired, err := s.acquireLease(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return SweepResult{}, err
	}
	if !acquired {
		metrics.SweepRuns.WithLabelValues("skipped").Inc()
		return SweepResult{Skipped: true}, nil
	}

	expired, err := s.allocations.ExpireDue(ctx, s.allocations.ledger.Now(), s.config.BatchSize)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return SweepResult{}, err
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	return SweepResult{Expired: expired, Duration: time.Since(start)}, nil
}

func (s *Sweeper) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.execute(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Sweeper) execute(ctx context.Context) {
	result, err := s.RunNow(ctx)
	if err != nil {
		s.log.WithError(err).Error("Reservation expiry sweep failed")
		return
	}

	if result.Expired > 0 {
		s.log.WithFields(logrus.Fields{
			"expired":     result.Expired,
			"duration_ms": result.Duration.Milliseconds(),
		}).Info("Reservation expiry sweep completed")
	}
}

// acquireLease takes the cluster-wide sweep lease for one interval. Without
// Redis every instance sweeps; ExpireDue is safe to run concurrently.
func (s *Sweeper) acquireLease(ctx context.Context) (bool, error) {
	if s.redisClient == nil {
		return true, nil
	}

	ok, err := s.redisClient.SetNX(ctx, s.config.LeaseKey, s.instanceID, s.config.Interval).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweeper lease: %w", err)
	}
	return ok, nil
}
