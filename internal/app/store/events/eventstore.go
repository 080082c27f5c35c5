// internal/app/store/events/eventstore.go
package eventstore

import (
	"context"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	es entitystore.Store
}

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Event, error) {
	var e models.Event
	if err := s.es.Get(ctx, entitystore.Events, id, &e); err != nil {
		return models.Event{}, err
	}
	e.Normalize()
	return e, nil
}

func (s *Store) Create(ctx context.Context, e models.Event) (models.Event, error) {
	now := time.Now().UTC()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Status == "" {
		e.Status = models.EventPending
	}
	if e.SelectedProjectIDs == nil {
		e.SelectedProjectIDs = []primitive.ObjectID{}
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.Events, e); err != nil {
		return models.Event{}, err
	}
	e.Normalize()
	return e, nil
}

// MarkApproved publishes a non-terminal event.
func (s *Store) MarkApproved(ctx context.Context, id, adminID primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Events, id,
		entitystore.NotTerminal(models.EventTerminalValues),
		bson.M{
			"status":      models.EventApproved,
			"is_active":   true,
			"approved_by": adminID,
			"approved_at": at,
			"updated_at":  at,
		})
}

func (s *Store) MarkRejected(ctx context.Context, id, adminID primitive.ObjectID, reason string, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Events, id,
		entitystore.NotTerminal(models.EventTerminalValues),
		bson.M{
			"status":           models.EventRejected,
			"is_active":        false,
			"rejected_by":      adminID,
			"rejected_at":      at,
			"rejection_reason": reason,
			"updated_at":       at,
		})
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.Events, id)
}

// Register records a user signing up for an event.
func (s *Store) Register(ctx context.Context, eventID, userID primitive.ObjectID, email string) (models.EventRegistration, error) {
	reg := models.EventRegistration{
		ID:        primitive.NewObjectID(),
		EventID:   eventID,
		UserID:    userID,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.es.Insert(ctx, entitystore.EventRegistrations, reg); err != nil {
		return models.EventRegistration{}, err
	}
	return reg, nil
}

// CountRegistrations returns the number of registrations for an event.
func (s *Store) CountRegistrations(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	return s.es.Count(ctx, entitystore.EventRegistrations, entitystore.Filter{"event_id": eventID})
}
