// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, log level, CORS); everything the
// moderation engine itself needs lives here.
type AppConfig struct {
	// Document store
	StoreBackend     string // "mongo" or "memory"
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookies (admin console)
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name (default: collabhub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// APIRateLimit is the request budget per client IP per minute on /api; 0 disables.
	APIRateLimit int

	// Outbound email service
	EmailMode       string        // "http" posts to EmailBaseURL; "log" only logs
	EmailBaseURL    string        // e.g. https://notify.example.com
	EmailRatePerSec int           // 0 disables rate limiting
	EmailTimeout    time.Duration // per attempt

	// Cascades
	CascadeParallelism int // concurrent deletes within one collection

	// Background jobs
	ReconcileSchedule     string        // cron spec for counter reconciliation
	NotificationRetention time.Duration // read notifications older than this are removed; 0 disables

	// Audit logging: "all" (db+log), "db", "log", or "off"
	AuditLogAdmin  string
	AuditLogSystem string

	// Store/dispatcher timeouts (zero keeps the defaults)
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutBatch  time.Duration

	// BootstrapAdminEmail, when set, is made an admin at startup.
	BootstrapAdminEmail string
}
