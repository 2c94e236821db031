package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically flips expired-but-active sessions to inactive.
// The sweep only tightens the active flag, so it is safe to run at any
// cadence alongside normal traffic.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper over the auth service.
func NewSweeper(svc *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	count, err := s.svc.CleanupExpired()
	if err != nil {
		s.logger.Error("session sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("expired sessions deactivated", zap.Int64("count", count))
	}
}
