package rollup

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Lekbanken/economy/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RefreshPayload is the body of a summary refresh task.
type RefreshPayload struct {
	TenantID string `json:"tenant_id"`
	Day      string `json:"day"`
}

// NewRefreshTask builds a task refreshing one tenant's summary for a day.
func NewRefreshTask(tenantID, day string) (*asynq.Task, error) {
	payload, err := json.Marshal(RefreshPayload{TenantID: tenantID, Day: day})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.SummaryRefresh, payload, asynq.Queue("low")), nil
}

// NewRefreshAllTask builds a task refreshing every tenant for a day.
func NewRefreshAllTask(day string) (*asynq.Task, error) {
	payload, err := json.Marshal(RefreshPayload{Day: day})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.SummaryRefreshAll, payload, asynq.Queue("low")), nil
}

// RegisterHandlers wires the rollup task handlers into the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.SummaryRefresh, func(ctx context.Context, t *asynq.Task) error {
		var p RefreshPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		if p.Day == "" {
			p.Day = DayOf(time.Now())
		}
		return svc.RefreshDailySummaries(ctx, p.TenantID, p.Day)
	})

	mux.HandleFunc(taskname.SummaryRefreshAll, func(ctx context.Context, t *asynq.Task) error {
		var p RefreshPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		if p.Day == "" {
			p.Day = DayOf(time.Now().AddDate(0, 0, -1))
		}
		start := time.Now()
		if err := svc.RefreshAll(ctx, p.Day); err != nil {
			return err
		}
		zap.L().Info("summary refresh finished",
			zap.String("day", p.Day),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	})
}
