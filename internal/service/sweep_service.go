package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type lapsedExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// SweepService periodically flags credential records whose expiry has
// passed. The request gate re-checks expiry itself, so a missed pass only
// delays bookkeeping.
type SweepService struct {
	ledger   lapsedExpirer
	metrics  *MetricsService
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweepService creates the sweeper. A non-positive interval defaults to five minutes.
func NewSweepService(ledger lapsedExpirer, metrics *MetricsService, logger *zap.Logger, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepService{
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the background loop. It runs one pass immediately.
func (s *SweepService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)
	s.logger.Info("credential sweep started", zap.Duration("interval", s.interval))
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (s *SweepService) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	s.logger.Info("credential sweep stopped")
}

func (s *SweepService) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-stopCh:
			return
		}
	}
}

// Sweep runs one pass and returns how many records it flagged. Re-running it
// over already flagged rows changes nothing.
func (s *SweepService) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	flagged, err := s.ledger.ExpireLapsed(ctx, s.now())
	if err != nil {
		s.logger.Error("credential sweep failed", zap.Error(err))
		return 0
	}
	s.metrics.RecordSweep(flagged)
	if flagged > 0 {
		s.logger.Info("credential sweep completed", zap.Int64("flagged", flagged))
	} else {
		s.logger.Debug("credential sweep completed", zap.Int64("flagged", flagged))
	}
	return flagged
}
