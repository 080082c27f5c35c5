// internal/app/system/tasks/scheduler.go
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs Jobs on their cron schedules. A job still running when its
// next tick arrives is skipped for that tick, and a panicking job is
// recovered and logged.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger

	mu   sync.Mutex
	jobs map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	cl := cronLogger{log: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    logger,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ValidateSpec reports whether spec is a schedule Add would accept: five
// cron fields or a descriptor such as "@every 1h".
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// Add registers j. It fails on a duplicate name or an invalid spec.
func (s *Scheduler) Add(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("tasks: job %q already registered", j.Name)
	}
	if _, err := s.cron.AddFunc(j.Spec, func() { s.execute(j) }); err != nil {
		return fmt.Errorf("tasks: job %q: invalid schedule %q: %w", j.Name, j.Spec, err)
	}
	s.jobs[j.Name] = j
	return nil
}

// RunNow runs the named job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("tasks: no job named %q", name)
	}
	return s.execute(j)
}

func (s *Scheduler) execute(j Job) error {
	ctx := s.ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := j.Run(ctx)
	if err != nil {
		s.log.Error("scheduled job failed",
			zap.String("job", j.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return err
	}
	s.log.Debug("scheduled job finished",
		zap.String("job", j.Name),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("task scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("task scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("task scheduler stop timed out")
	}
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
