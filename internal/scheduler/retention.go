package scheduler

import (
	"context"
	"time"

	"crm_bridge_backend/platform/logger"
)

const defaultSweepInterval = 24 * time.Hour

// RetentionScheduler periodically enqueues an audit retention sweep. The
// sweep itself runs on the worker so a slow delete never blocks this loop.
type RetentionScheduler struct {
	client     *Client
	daysToKeep int
	interval   time.Duration
	log        *logger.Logger
}

func NewRetentionScheduler(client *Client, daysToKeep int, interval time.Duration, log *logger.Logger) *RetentionScheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &RetentionScheduler{
		client:     client,
		daysToKeep: daysToKeep,
		interval:   interval,
		log:        log,
	}
}

func (s *RetentionScheduler) Run(ctx context.Context) {
	if s == nil || s.client == nil {
		return
	}

	s.enqueue(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(ctx)
		}
	}
}

func (s *RetentionScheduler) enqueue(ctx context.Context) {
	err := s.client.EnqueueRetentionSweep(ctx, AuditRetentionSweepPayload{DaysToKeep: s.daysToKeep})
	if err != nil {
		s.log.Warn("failed to enqueue audit retention sweep", "error", err)
		return
	}
	s.log.Debug("audit retention sweep enqueued", "daysToKeep", s.daysToKeep)
}
