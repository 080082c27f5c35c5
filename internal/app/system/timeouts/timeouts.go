// Package timeouts provides centralized timeout values for store and
// dispatcher operations.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks
//   - Short: single-document reads
//   - Medium: list queries and single writes
//   - Long: approvals and cascades that touch several collections
//   - Batch: counter reconciliation over whole collections
//
// Values are set once at startup with Configure; tests may call Reset.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
	DefaultBatch  = 2 * time.Minute
)

// Config holds timeout values. Zero fields are ignored by Configure.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Batch  time.Duration
}

func defaults() Config {
	return Config{
		Ping:   DefaultPing,
		Short:  DefaultShort,
		Medium: DefaultMedium,
		Long:   DefaultLong,
		Batch:  DefaultBatch,
	}
}

var (
	mu      sync.RWMutex
	current = defaults()
)

// Current returns the timeout values in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Ping() time.Duration   { return Current().Ping }
func Short() time.Duration  { return Current().Short }
func Medium() time.Duration { return Current().Medium }

// Long bounds a whole lifecycle transition or cascade, side effects included.
func Long() time.Duration  { return Current().Long }
func Batch() time.Duration { return Current().Batch }

// Configure overrides the positive fields of cfg.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	override := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	override(&current.Ping, cfg.Ping)
	override(&current.Short, cfg.Short)
	override(&current.Medium, cfg.Medium)
	override(&current.Long, cfg.Long)
	override(&current.Batch, cfg.Batch)
}

// Reset restores the defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = defaults()
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context ended because the deadline passed.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}

// Detached returns a context that keeps parent's values but not its
// cancellation, bounded by Long. Approvals and cascades run on it so a client
// disconnect cannot leave them half applied.
//
//	ctx, cancel := timeouts.Detached(r.Context(), h.Log, "approve project")
//	defer cancel()
func Detached(parent context.Context, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	return WithTimeout(context.WithoutCancel(parent), Long(), log, operation)
}
