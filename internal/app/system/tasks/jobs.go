// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"errors"
	"time"

	notificationstore "github.com/dalemusser/collabhub/internal/app/store/notifications"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"github.com/dalemusser/collabhub/internal/app/system/workers"
	"go.uber.org/zap"
)

// Job is a named unit of background work run on a cron schedule.
type Job struct {
	Name string
	// Spec is a cron expression or descriptor such as "@every 15m".
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// ReconcileCountersJob creates a job that repairs drifted member and
// comment counters.
func ReconcileCountersJob(rec *workers.Reconciler, spec string) Job {
	return Job{
		Name:    "reconcile-counters",
		Spec:    spec,
		Timeout: timeouts.Batch(),
		Run: func(ctx context.Context) error {
			_, err := rec.Run(ctx)
			if errors.Is(err, workers.ErrAlreadyRunning) {
				return nil
			}
			return err
		},
	}
}

// NotificationRetentionJob creates a job that removes read notifications
// older than keep.
func NotificationRetentionJob(store *notificationstore.Store, logger *zap.Logger, keep time.Duration) Job {
	return Job{
		Name:    "notification-retention",
		Spec:    "@daily",
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			count, err := store.DeleteReadBefore(ctx, time.Now().UTC().Add(-keep))
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("pruned read notifications",
					zap.Int64("count", count),
					zap.Duration("keep", keep))
			}
			return nil
		},
	}
}
