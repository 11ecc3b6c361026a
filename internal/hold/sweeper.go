package hold

import (
	"context"
	"time"

	"github.com/clinicvoice/booking-engine/pkg/logging"
)

// Sweeper periodically expires overdue holds so abandoned calls free their
// slots without any explicit release.
type Sweeper struct {
	service  *Service
	logger   *logging.Logger
	interval time.Duration
}

func NewSweeper(service *Service, logger *logging.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{service: service, logger: logger, interval: interval}
}

// Start blocks until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.service.SweepExpired(ctx); err != nil {
				s.logger.Error("hold sweep failed", "error", err)
			}
		}
	}
}
