// Package scheduler runs periodic maintenance jobs. Read paths detect
// invitation expiry lazily; the sweep keeps listings and the pending
// email uniqueness index from accumulating stale rows.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/domain/invitations"
	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

const sweepTimeout = 2 * time.Minute

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// sweeper is the slice of the invitations domain the sweep needs.
type sweeper interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// NewScheduler creates the scheduler with the invitation sweep
// registered.
func NewScheduler(cfg *config.Config, invites *invitations.Repository, log *slog.Logger) (*Scheduler, error) {
	return newScheduler(cfg, invites, log)
}

func newScheduler(cfg *config.Config, invites sweeper, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		log:  log.With(logger.Scope("scheduler")),
	}

	// An empty schedule disables the sweep; lazy expiry on the read
	// paths still applies.
	if cfg.InviteSweepSchedule == "" {
		s.log.Warn("invitation sweep disabled, INVITE_SWEEP_SCHEDULE is empty")
		return s, nil
	}

	_, err := s.cron.AddFunc(cfg.InviteSweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		n, err := invites.ExpireOverdue(ctx)
		if err != nil {
			s.log.Error("invitation sweep failed", logger.Error(err))
			return
		}
		if n > 0 {
			s.log.Info("expired overdue invitations", slog.Int64("count", n))
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts scheduling and waits for a running sweep.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Module wires the scheduler into the application lifecycle.
var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.StartStopHook(s.Start, s.Stop))
	}),
)
