// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/dalemusser/collabhub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Admin controls logging for moderation events (approvals, rejections, cascades).
	// Values: "all" (store + zap), "db" (store only), "log" (zap only), "off" (disabled)
	Admin string
	// System controls logging for background repairs and migration shims.
	// Same values as Admin; empty means "all".
	System string
}

// Logger provides convenience methods for logging audit events.
// It logs to both the audit store and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.TargetID != nil {
		fields = append(fields, zap.String("target_type", event.TargetType), zap.String("target_id", event.TargetID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.String("detail_"+k, event.Details[k]))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAdmin:
		setting = l.config.Admin
	case audit.CategorySystem:
		setting = l.config.System
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) admin(ctx context.Context, eventType, targetType string, actorID, targetID primitive.ObjectID, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryAdmin,
		EventType:  eventType,
		ActorID:    &actorID,
		TargetType: targetType,
		TargetID:   &targetID,
		Success:    true,
		Details:    details,
	})
}

// --- Lifecycle Events ---

// ProjectApproved logs a project approval and the group it created.
func (l *Logger) ProjectApproved(ctx context.Context, actorID, projectID, groupID primitive.ObjectID) {
	l.admin(ctx, audit.EventProjectApproved, "project", actorID, projectID, map[string]string{
		"group_id": groupID.Hex(),
	})
}

func (l *Logger) ProjectRejected(ctx context.Context, actorID, projectID primitive.ObjectID, reason string) {
	l.admin(ctx, audit.EventProjectRejected, "project", actorID, projectID, map[string]string{
		"reason": reason,
	})
}

func (l *Logger) EventApproved(ctx context.Context, actorID, eventID primitive.ObjectID) {
	l.admin(ctx, audit.EventEventApproved, "event", actorID, eventID, nil)
}

func (l *Logger) EventRejected(ctx context.Context, actorID, eventID primitive.ObjectID, reason string) {
	l.admin(ctx, audit.EventEventRejected, "event", actorID, eventID, map[string]string{
		"reason": reason,
	})
}

func (l *Logger) CompletionApproved(ctx context.Context, actorID, requestID, groupID primitive.ObjectID) {
	l.admin(ctx, audit.EventCompletionApproved, "completion_request", actorID, requestID, map[string]string{
		"group_id": groupID.Hex(),
	})
}

func (l *Logger) CompletionRejected(ctx context.Context, actorID, requestID, groupID primitive.ObjectID, reason string) {
	l.admin(ctx, audit.EventCompletionRejected, "completion_request", actorID, requestID, map[string]string{
		"group_id": groupID.Hex(),
		"reason":   reason,
	})
}

func (l *Logger) ApplicationApproved(ctx context.Context, actorID, applicationID, groupID primitive.ObjectID) {
	l.admin(ctx, audit.EventApplicationApproved, "project_application", actorID, applicationID, map[string]string{
		"group_id": groupID.Hex(),
	})
}

func (l *Logger) ApplicationRejected(ctx context.Context, actorID, applicationID primitive.ObjectID, reason string) {
	l.admin(ctx, audit.EventApplicationRejected, "project_application", actorID, applicationID, map[string]string{
		"reason": reason,
	})
}

func (l *Logger) CompanyEnded(ctx context.Context, actorID, companyID primitive.ObjectID) {
	l.admin(ctx, audit.EventCompanyEnded, "company", actorID, companyID, nil)
}

// TransitionFailed logs an admin action that was refused or failed before
// any state changed.
func (l *Logger) TransitionFailed(ctx context.Context, actorID primitive.ObjectID, targetType string, targetID primitive.ObjectID, action, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAdmin,
		EventType:     audit.EventTransitionFailed,
		ActorID:       &actorID,
		TargetType:    targetType,
		TargetID:      &targetID,
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"action": action},
	})
}

// --- Cascade Events ---

// CascadeDeleted logs the outcome of a cascade. Success is false when any
// child collection reported an error, even though the root was removed.
func (l *Logger) CascadeDeleted(ctx context.Context, actorID primitive.ObjectID, root string, rootID primitive.ObjectID, receiptID string, counts map[string]int, errCount int) {
	details := map[string]string{
		"receipt_id": receiptID,
		"errors":     strconv.Itoa(errCount),
	}
	for coll, n := range counts {
		details["deleted_"+coll] = strconv.Itoa(n)
	}
	event := audit.Event{
		Category:   audit.CategoryAdmin,
		EventType:  audit.EventCascadeDeleted,
		ActorID:    &actorID,
		TargetType: root,
		TargetID:   &rootID,
		Success:    errCount == 0,
		Details:    details,
	}
	if errCount > 0 {
		event.FailureReason = "partial cascade"
	}
	l.Log(ctx, event)
}

// --- System Events ---

// CounterRepaired logs a denormalized counter that drifted from its source rows.
func (l *Logger) CounterRepaired(ctx context.Context, collection string, id primitive.ObjectID, field string, was, now int64) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategorySystem,
		EventType:  audit.EventCounterRepaired,
		TargetType: strings.TrimSuffix(collection, "s"),
		TargetID:   &id,
		Success:    true,
		Details: map[string]string{
			"field": field,
			"was":   strconv.FormatInt(was, 10),
			"now":   strconv.FormatInt(now, 10),
		},
	})
}
