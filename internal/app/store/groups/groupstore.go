// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	es entitystore.Store
}

// ErrProjectHasGroup is returned when a second group is created for a project.
var ErrProjectHasGroup = errors.New("a group already exists for this project")

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.es.Get(ctx, entitystore.Groups, id, &g); err != nil {
		return models.Group{}, err
	}
	g.Normalize()
	return g, nil
}

// GetByProject returns the group created for a project.
func (s *Store) GetByProject(ctx context.Context, projectID primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.es.FindOne(ctx, entitystore.Groups, entitystore.Filter{"project_id": projectID}, &g); err != nil {
		return models.Group{}, err
	}
	g.Normalize()
	return g, nil
}

// Create inserts a group. Member and post counts always start at zero; they
// only move through AdjustMemberCount and AdjustPostCount.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	if g.Status == "" {
		g.Status = models.GroupActive
	}
	g.MemberCount = 0
	g.PostCount = 0
	g.CreatedAt = now
	g.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.Groups, g); err != nil {
		if errors.Is(err, entitystore.ErrConflict) && g.ProjectID != nil {
			return models.Group{}, fmt.Errorf("%w: %w", ErrProjectHasGroup, err)
		}
		return models.Group{}, err
	}
	g.Normalize()
	return g, nil
}

// Delete removes a group by ID.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.Groups, id)
}

// AdjustMemberCount atomically adds delta to member_count.
func (s *Store) AdjustMemberCount(ctx context.Context, id primitive.ObjectID, delta int64) error {
	return entitystore.Increment(ctx, s.es, entitystore.Groups, id, "member_count", delta)
}

// AdjustPostCount atomically adds delta to post_count.
func (s *Store) AdjustPostCount(ctx context.Context, id primitive.ObjectID, delta int64) error {
	return entitystore.Increment(ctx, s.es, entitystore.Groups, id, "post_count", delta)
}

// RepairMemberCount sets member_count to actual only if it still holds
// observed, so a concurrent join or leave is never overwritten.
func (s *Store) RepairMemberCount(ctx context.Context, id primitive.ObjectID, observed, actual int64) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Groups, id,
		entitystore.CounterIs("member_count", observed),
		bson.M{"member_count": actual})
}

// RequestCompletion flags an active group as ready for completion review.
// It returns entitystore.ErrConflict if the group is already flagged or is
// not active.
func (s *Store) RequestCompletion(ctx context.Context, id, requestID primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Groups, id,
		entitystore.Filter{
			"status":                                bson.M{"$nin": []string{string(models.GroupReadyForBadgeAssignment), string(models.GroupCompleted)}},
			"completion_status.ready_for_completion": bson.M{"$ne": true},
		},
		bson.M{
			"completion_status.ready_for_completion": true,
			"completion_status.request_id":           requestID,
			"completion_status.requested_at":         at,
			"updated_at":                             at,
		})
}

// MarkReadyForBadges moves the group forward after an approved completion.
func (s *Store) MarkReadyForBadges(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return entitystore.Set(ctx, s.es, entitystore.Groups, id, bson.M{
		"status":                        models.GroupReadyForBadgeAssignment,
		"completion_status.approved_at": at,
		"updated_at":                    at,
	})
}

// ResetCompletion puts the group back to active and clears the completion
// flags so members can submit again.
func (s *Store) ResetCompletion(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return entitystore.Set(ctx, s.es, entitystore.Groups, id, bson.M{
		"status":            models.GroupActive,
		"completion_status": models.GroupCompletion{},
		"updated_at":        at,
	})
}

// ListIDs returns every group id.
func (s *Store) ListIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	return s.es.IDs(ctx, entitystore.Groups, entitystore.Filter{})
}
