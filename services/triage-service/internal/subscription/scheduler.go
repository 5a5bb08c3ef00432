package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// renewTimeout bounds one scheduled renewal pass
const renewTimeout = 5 * time.Minute

// Scheduler runs RenewAll on a standard 5-field cron spec (UTC)
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
}

func NewScheduler(manager *Manager, spec string) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, manager: manager}

	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid renewal schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()

	s.manager.logger.Info("Scheduled task: renewing subscriptions")
	if _, err := s.manager.RenewAll(ctx); err != nil {
		s.manager.logger.Error("Scheduled renewal aborted", zap.Error(err))
	}
}

// Start runs the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running one up to ctx's deadline
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next returns the next scheduled run
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
