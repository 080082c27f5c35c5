// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	adminfeature "github.com/dalemusser/collabhub/internal/app/features/admin"
	auditlogfeature "github.com/dalemusser/collabhub/internal/app/features/auditlog"
	healthfeature "github.com/dalemusser/collabhub/internal/app/features/health"
	membersfeature "github.com/dalemusser/collabhub/internal/app/features/members"
	"github.com/dalemusser/collabhub/internal/app/store/audit"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/auth"
	"github.com/dalemusser/collabhub/internal/app/system/metrics"
	"github.com/dalemusser/collabhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, store connection, index setup, and
// Startup have completed, so the service graph in deps.Runtime is ready.
//
// Layout:
//
//	/health           store liveness (no auth)
//	/metrics          Prometheus scrape (no auth)
//	/api/admin/...    moderation API; caller from API key or session, admin required
//	/api/audit        paged audit trail (admin required)
//	/api/me/...       member actions as the signed-in user
//
// Everything under /api shares a per-IP request budget (api_rate_limit).
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	rt := deps.Runtime
	r := chi.NewRouter()
	r.Use(metrics.InstrumentHandler)

	healthHandler := healthfeature.NewHandler(deps.Store, deps.Backend, rt.Broker, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", metrics.Handler())

	var limiter *ratelimit.Limiter
	if appCfg.APIRateLimit > 0 {
		limiter = ratelimit.New(appCfg.APIRateLimit, time.Minute)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(ratelimit.Middleware(limiter, logger))
		// API key first; a request it identifies skips the session lookup.
		api.Use(auth.LoadAPIKey(rt.Admins, logger))
		api.Use(sessionMgr.LoadSessionUser)

		adminHandler := adminfeature.NewHandler(rt.Lifecycle, rt.Cascade, rt.Community, rt.Reconciler, rt.Broker, logger)
		api.Mount("/admin", adminfeature.Routes(adminHandler, rt.Admins, logger))

		auditHandler := auditlogfeature.NewHandler(audit.New(deps.Store), userstore.New(deps.Store), logger)
		api.Mount("/audit", auditlogfeature.Routes(auditHandler, rt.Admins, logger))

		api.Mount("/me", membersfeature.Routes(membersfeature.NewHandler(rt.Community, rt.Lifecycle, logger)))
	})

	return r, nil
}
