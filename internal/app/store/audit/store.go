// internal/app/store/audit/store.go
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event categories
const (
	CategoryAdmin  = "admin"
	CategorySystem = "system"
)

// Admin event types
const (
	EventProjectApproved     = "project_approved"
	EventProjectRejected     = "project_rejected"
	EventEventApproved       = "event_approved"
	EventEventRejected       = "event_rejected"
	EventCompletionApproved  = "completion_approved"
	EventCompletionRejected  = "completion_rejected"
	EventApplicationApproved = "application_approved"
	EventApplicationRejected = "application_rejected"
	EventCompanyEnded        = "company_ended"
	EventCascadeDeleted      = "cascade_deleted"
	EventTransitionFailed    = "transition_failed"
)

// System event types
const (
	EventCounterRepaired = "counter_repaired"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`

	// Event classification
	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who and what
	ActorID    *primitive.ObjectID `bson:"actor_id,omitempty"`
	TargetType string              `bson:"target_type,omitempty"`
	TargetID   *primitive.ObjectID `bson:"target_id,omitempty"`

	// Outcome
	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	ActorID   *primitive.ObjectID
	TargetID  *primitive.ObjectID
	Category  string
	EventType string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int // 0 means 100
	Offset    int
}

// Store manages audit event records.
type Store struct {
	es entitystore.Store
}

// New creates a new audit Store.
func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return s.es.Insert(ctx, entitystore.AuditEvents, event)
}

func buildQuery(filter QueryFilter) entitystore.Filter {
	query := entitystore.Filter{}
	if filter.ActorID != nil {
		query["actor_id"] = *filter.ActorID
	}
	if filter.TargetID != nil {
		query["target_id"] = *filter.TargetID
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.EventType != "" {
		query["event_type"] = filter.EventType
	}
	if filter.StartTime != nil || filter.EndTime != nil {
		timeQuery := bson.M{}
		if filter.StartTime != nil {
			timeQuery["$gte"] = *filter.StartTime
		}
		if filter.EndTime != nil {
			timeQuery["$lte"] = *filter.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Query retrieves audit events matching the given filter, most recent first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var events []Event
	if err := s.es.Find(ctx, entitystore.AuditEvents, buildQuery(filter), &events); err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []Event{}, nil
		}
		events = events[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter. Limit and
// Offset are ignored.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.es.Count(ctx, entitystore.AuditEvents, buildQuery(filter))
}

// GetByTarget retrieves recent audit events about one entity.
func (s *Store) GetByTarget(ctx context.Context, targetID primitive.ObjectID, limit int) ([]Event, error) {
	return s.Query(ctx, QueryFilter{TargetID: &targetID, Limit: limit})
}
