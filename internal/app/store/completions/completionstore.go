// internal/app/store/completions/completionstore.go
package completionstore

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

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.CompletionRequest, error) {
	var c models.CompletionRequest
	if err := s.es.Get(ctx, entitystore.CompletionRequests, id, &c); err != nil {
		return models.CompletionRequest{}, err
	}
	c.Normalize()
	return c, nil
}

func (s *Store) Create(ctx context.Context, c models.CompletionRequest) (models.CompletionRequest, error) {
	now := time.Now().UTC()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.Status == "" {
		c.Status = models.CompletionPending
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.CompletionRequests, c); err != nil {
		return models.CompletionRequest{}, err
	}
	c.Normalize()
	return c, nil
}

// PendingForGroup returns the group's non-terminal request, if any.
func (s *Store) PendingForGroup(ctx context.Context, groupID primitive.ObjectID) (models.CompletionRequest, error) {
	f := entitystore.NotTerminal(models.CompletionTerminalValues)
	f["group_id"] = groupID
	var c models.CompletionRequest
	if err := s.es.FindOne(ctx, entitystore.CompletionRequests, f, &c); err != nil {
		return models.CompletionRequest{}, err
	}
	c.Normalize()
	return c, nil
}

func (s *Store) MarkApproved(ctx context.Context, id, adminID primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.CompletionRequests, id,
		entitystore.NotTerminal(models.CompletionTerminalValues),
		bson.M{
			"status":                     models.CompletionApproved,
			"admin_approval.approved":    true,
			"admin_approval.approved_by": adminID,
			"admin_approval.approved_at": at,
			"updated_at":                 at,
		})
}

func (s *Store) MarkRejected(ctx context.Context, id primitive.ObjectID, reason string, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.CompletionRequests, id,
		entitystore.NotTerminal(models.CompletionTerminalValues),
		bson.M{
			"status":                         models.CompletionRejected,
			"admin_approval.approved":        false,
			"admin_approval.rejected_reason": reason,
			"admin_approval.rejected_at":     at,
			"updated_at":                     at,
		})
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.CompletionRequests, id)
}

func (s *Store) CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.es.Count(ctx, entitystore.CompletionRequests, entitystore.Filter{"group_id": groupID})
}
