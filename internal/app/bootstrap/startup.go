// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	adminstore "github.com/dalemusser/collabhub/internal/app/store/admins"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after the store is
// connected and indexes exist, but before the HTTP handler is built: it
// applies timeouts, builds the service graph, ensures the bootstrap admin,
// and starts the job scheduler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Batch:  appCfg.TimeoutBatch,
	})

	if err := deps.Runtime.build(appCfg, deps, logger); err != nil {
		return err
	}

	if appCfg.BootstrapAdminEmail != "" {
		if err := ensureBootstrapAdmin(ctx, deps.Store, appCfg.BootstrapAdminEmail, logger); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	deps.Runtime.Scheduler.Start()
	return nil
}

// ensureBootstrapAdmin makes email an active admin, creating the user if
// needed. A newly minted API key is logged once; it cannot be recovered
// later. An existing admin is left untouched.
func ensureBootstrapAdmin(ctx context.Context, es entitystore.Store, email string, logger *zap.Logger) error {
	users := userstore.New(es)
	admins := adminstore.New(es)

	u, err := users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, entitystore.ErrNotFound):
		u, err = users.Create(ctx, models.User{Email: email})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		logger.Info("bootstrap admin user created", zap.String("email", u.Email))
	case err != nil:
		return fmt.Errorf("look up user: %w", err)
	}

	if _, err := admins.GetActiveByUser(ctx, u.ID); err == nil {
		logger.Debug("bootstrap admin already present", zap.String("email", u.Email))
		return nil
	} else if !errors.Is(err, entitystore.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	a, key, err := admins.Create(ctx, u.ID, u.Email)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Warn("bootstrap admin created; record this API key now, it is not shown again",
		zap.String("admin_id", a.ID.Hex()),
		zap.String("email", a.Email),
		zap.String("api_key", key))
	return nil
}
