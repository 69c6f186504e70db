package rollup

import (
	"context"
	"time"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/pkg/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the nightly refresh-all task. Refreshes run over the
// previous UTC day once its bucket is closed.
type Scheduler struct {
	enqueuer task.Enqueuer
	hour     int
}

func NewScheduler(enqueuer task.Enqueuer, cfg *config.Config) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		hour:     cfg.Economy.SummaryRefreshHour,
	}
}

// StartScheduler is invoked by FX at service start. The loop outlives the
// start hook's context and stops with the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	loopCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(loopCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started summary refresh scheduler", zap.Int("hour", s.hour))

	for {
		now := time.Now().UTC()
		next := nextRunTime(now, s.hour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily()
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily() {
	day := DayOf(time.Now().AddDate(0, 0, -1))

	t, err := NewRefreshAllTask(day)
	if err != nil {
		zap.L().Error("[Scheduler] failed to build refresh task", zap.Error(err))
		return
	}

	if _, err := s.enqueuer.Enqueue(t); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue refresh task", zap.String("day", day), zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] enqueued summary refresh", zap.String("day", day))
}

// nextRunTime computes the next daily occurrence of hour:minute.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
