package task

import (
	"context"
	"time"

	"storefront-core/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	service *Service
	cfg     *config.Config
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	return &Scheduler{service: svc, cfg: cfg}
}

// StartScheduler runs the daily loops for the lifetime of the fx app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.cancel == nil {
				return nil
			}
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	zap.L().Info("[Scheduler] started settlement and reconcile scheduler")

	sched := s.cfg.Scheduler
	jobs := []struct {
		name         string
		hour, minute int
		fn           func(context.Context) (*Job, error)
	}{
		{"settlement", sched.SettlementHour, sched.SettlementMinute, func(ctx context.Context) (*Job, error) {
			return s.service.EnqueueSettlement(ctx, -1)
		}},
		{"reconcile", sched.ReconcileHour, 0, s.service.EnqueueReconcile},
	}

	next := make([]time.Time, len(jobs))
	now := time.Now()
	for i, j := range jobs {
		next[i] = nextRunTime(now, j.hour, j.minute)
		zap.L().Info("[Scheduler] next run scheduled", zap.String("job", j.name), zap.Time("next_run", next[i]))
	}

	for {
		soonest := 0
		for i := range next {
			if next[i].Before(next[soonest]) {
				soonest = i
			}
		}

		timer := time.NewTimer(time.Until(next[soonest]))
		select {
		case <-timer.C:
			j := jobs[soonest]
			start := time.Now()
			if job, err := j.fn(ctx); err != nil {
				zap.L().Error("[Scheduler] failed to enqueue", zap.String("job", j.name), zap.Error(err))
			} else {
				zap.L().Info("[Scheduler] enqueued",
					zap.String("job", j.name),
					zap.String("job_id", job.ID),
					zap.Duration("duration", time.Since(start)),
				)
			}
			next[soonest] = nextRunTime(time.Now().Add(time.Second), j.hour, j.minute)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// nextRunTime returns the next occurrence of hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
