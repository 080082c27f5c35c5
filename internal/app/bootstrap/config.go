// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// appConfigKeys defines the configuration keys for CollabHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, store_backend, etc.
//   - Environment variables: COLLABHUB_MONGO_URI, COLLABHUB_STORE_BACKEND, etc.
//   - Command-line flags: --mongo_uri, --store_backend, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Document store: 'mongo' or 'memory' (memory is for local development only)"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "collabhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "collabhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},
	{Name: "api_rate_limit", Default: 600, Desc: "Requests per minute per client IP on /api (0 = unlimited)"},

	// Outbound email service
	{Name: "email_mode", Default: "log", Desc: "Email dispatch: 'http' (post to email_base_url) or 'log' (log only)"},
	{Name: "email_base_url", Default: "", Desc: "Base URL of the email notification service"},
	{Name: "email_rate_per_sec", Default: 10, Desc: "Max email dispatches per second (0 = unlimited)"},
	{Name: "email_timeout", Default: "10s", Desc: "Timeout per email dispatch attempt"},

	{Name: "cascade_parallelism", Default: 8, Desc: "Concurrent deletes within one collection during a cascade"},

	// Background jobs
	{Name: "reconcile_schedule", Default: "@every 1h", Desc: "Cron spec for counter reconciliation (blank disables)"},
	{Name: "notification_retention", Default: "2160h", Desc: "Remove read notifications older than this (0 disables)"},

	// Audit logging settings
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_system", Default: "all", Desc: "System event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Timeouts
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for list queries and single writes"},
	{Name: "timeout_long", Default: "30s", Desc: "Timeout for approvals and cascades"},
	{Name: "timeout_batch", Default: "2m", Desc: "Timeout for a reconciliation pass"},

	{Name: "bootstrap_admin_email", Default: "", Desc: "Email of a user to make admin on startup (creates the user if needed)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, COLLABHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "COLLABHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend:     strings.ToLower(strings.TrimSpace(appValues.String("store_backend"))),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 24*time.Hour),

		APIRateLimit: appValues.Int("api_rate_limit"),

		EmailMode:       strings.ToLower(strings.TrimSpace(appValues.String("email_mode"))),
		EmailBaseURL:    strings.TrimRight(appValues.String("email_base_url"), "/"),
		EmailRatePerSec: appValues.Int("email_rate_per_sec"),
		EmailTimeout:    appValues.Duration("email_timeout", 10*time.Second),

		CascadeParallelism: appValues.Int("cascade_parallelism"),

		ReconcileSchedule:     strings.TrimSpace(appValues.String("reconcile_schedule")),
		NotificationRetention: appValues.Duration("notification_retention", 90*24*time.Hour),

		AuditLogAdmin:  appValues.String("audit_log_admin"),
		AuditLogSystem: appValues.String("audit_log_system"),

		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),
		TimeoutLong:   appValues.Duration("timeout_long", 0),
		TimeoutBatch:  appValues.Duration("timeout_batch", 0),

		BootstrapAdminEmail: strings.TrimSpace(appValues.String("bootstrap_admin_email")),
	}

	return coreCfg, appCfg, nil
}

var auditSettings = map[string]bool{"": true, "all": true, "db": true, "log": true, "off": true}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is only checked when the mongo backend is selected, so a
// memory-backed development run needs no database at all.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
	case BackendMemory:
		if coreCfg.Env == "prod" {
			return fmt.Errorf("store_backend=memory is not allowed in prod")
		}
		logger.Warn("using the in-memory store; data is lost on restart")
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", BackendMongo, BackendMemory, appCfg.StoreBackend)
	}

	switch appCfg.EmailMode {
	case "http":
		if appCfg.EmailBaseURL == "" {
			return fmt.Errorf("email_mode=http requires email_base_url")
		}
	case "log":
	default:
		return fmt.Errorf("email_mode must be 'http' or 'log', got %q", appCfg.EmailMode)
	}

	if appCfg.APIRateLimit < 0 {
		return fmt.Errorf("api_rate_limit must not be negative, got %d", appCfg.APIRateLimit)
	}
	if appCfg.CascadeParallelism < 1 {
		return fmt.Errorf("cascade_parallelism must be at least 1, got %d", appCfg.CascadeParallelism)
	}
	if appCfg.ReconcileSchedule != "" {
		if err := tasks.ValidateSpec(appCfg.ReconcileSchedule); err != nil {
			return fmt.Errorf("reconcile_schedule: %w", err)
		}
	}
	for name, v := range map[string]string{"audit_log_admin": appCfg.AuditLogAdmin, "audit_log_system": appCfg.AuditLogSystem} {
		if !auditSettings[v] {
			return fmt.Errorf("%s must be all, db, log, or off, got %q", name, v)
		}
	}
	return nil
}
