// internal/app/bootstrap/runtime.go
package bootstrap

import (
	"fmt"

	adminstore "github.com/dalemusser/collabhub/internal/app/store/admins"
	"github.com/dalemusser/collabhub/internal/app/store/audit"
	notificationstore "github.com/dalemusser/collabhub/internal/app/store/notifications"
	"github.com/dalemusser/collabhub/internal/app/system/auditlog"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/app/system/community"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/lifecycle"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/app/system/tasks"
	"github.com/dalemusser/collabhub/internal/app/system/workers"
	"go.uber.org/zap"
)

// Runtime is the service graph built once in Startup and shared by the
// HTTP handlers and the job scheduler.
type Runtime struct {
	Broker     *broker.Broker
	Audit      *auditlog.Logger
	Admins     *adminstore.Store
	Mailer     mailer.Dispatcher
	Cascade    *cascade.Engine
	Community  *community.Service
	Lifecycle  *lifecycle.Engine
	Reconciler *workers.Reconciler
	Scheduler  *tasks.Scheduler
}

// build wires every service over deps.Store. It does not start the
// scheduler.
func (rt *Runtime) build(appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	es := deps.Store

	rt.Broker = broker.New()
	rt.Audit = auditlog.New(audit.New(es), logger, auditlog.Config{
		Admin:  appCfg.AuditLogAdmin,
		System: appCfg.AuditLogSystem,
	})
	rt.Admins = adminstore.New(es)

	switch appCfg.EmailMode {
	case "http":
		rt.Mailer = mailer.NewHTTPDispatcher(mailer.Config{
			BaseURL:    appCfg.EmailBaseURL,
			Timeout:    appCfg.EmailTimeout,
			RatePerSec: float64(appCfg.EmailRatePerSec),
		}, logger)
	default:
		rt.Mailer = mailer.LogDispatcher{Log: logger}
	}

	fo := fanout.New(es, logger)
	rt.Cascade = cascade.New(es, rt.Audit, rt.Broker, logger, appCfg.CascadeParallelism)
	rt.Community = community.New(community.Deps{
		Store:  es,
		Fanout: fo,
		Audit:  rt.Audit,
		Broker: rt.Broker,
		Log:    logger,
	})
	rt.Lifecycle = lifecycle.New(lifecycle.Deps{
		Store:     es,
		Fanout:    fo,
		Mailer:    rt.Mailer,
		Audit:     rt.Audit,
		Broker:    rt.Broker,
		Cascade:   rt.Cascade,
		Community: rt.Community,
		Log:       logger,
	})
	rt.Reconciler = workers.NewReconciler(es, rt.Audit, logger)

	rt.Scheduler = tasks.NewScheduler(logger)
	if appCfg.ReconcileSchedule != "" {
		if err := rt.Scheduler.Add(tasks.ReconcileCountersJob(rt.Reconciler, appCfg.ReconcileSchedule)); err != nil {
			return fmt.Errorf("schedule reconciler: %w", err)
		}
	}
	if appCfg.NotificationRetention > 0 {
		job := tasks.NotificationRetentionJob(notificationstore.New(es), logger, appCfg.NotificationRetention)
		if err := rt.Scheduler.Add(job); err != nil {
			return fmt.Errorf("schedule notification retention: %w", err)
		}
	}
	return nil
}
