package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/battlebrief/bulwark/internal/logger"
)

const retentionSweepTimeout = 5 * time.Minute

type RetentionStore interface {
	EnforceRetentionAll(ctx context.Context, limit int) (int64, error)
}

// RetentionJob re-applies the per-user retention cap to every user. Saves
// already enforce it; the sweep catches rows left over after the cap was lowered.
type RetentionJob struct {
	ctx   context.Context
	store RetentionStore
	limit int
	cron  *cron.Cron
	log   *logger.Logger
}

func NewRetentionJob(ctx context.Context, store RetentionStore, limit int, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		ctx:   ctx,
		store: store,
		limit: limit,
		cron:  cron.New(cron.WithLocation(time.UTC)),
		log:   log.With("component", "RetentionJob"),
	}
}

func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	if j.limit <= 0 {
		return 0, nil
	}
	evicted, err := j.store.EnforceRetentionAll(ctx, j.limit)
	if err != nil {
		return 0, fmt.Errorf("retention sweep failed: %w", err)
	}
	j.log.Info("Retention sweep finished", "evicted", evicted, "cap", j.limit)
	return evicted, nil
}

// Start schedules the sweep. An empty schedule disables it.
func (j *RetentionJob) Start(schedule string) error {
	if schedule == "" || j.limit <= 0 {
		j.log.Info("Retention sweep disabled")
		return nil
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.log.Info("Retention sweep scheduled", "schedule", schedule)
	return nil
}

func (j *RetentionJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *RetentionJob) run() {
	ctx, cancel := context.WithTimeout(j.ctx, retentionSweepTimeout)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.log.Error("Scheduled retention sweep failed", "error", err)
	}
}
