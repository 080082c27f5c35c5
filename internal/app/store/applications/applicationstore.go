// internal/app/store/applications/applicationstore.go
package applicationstore

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

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.ProjectApplication, error) {
	var a models.ProjectApplication
	if err := s.es.Get(ctx, entitystore.ProjectApplications, id, &a); err != nil {
		return models.ProjectApplication{}, err
	}
	a.Normalize()
	return a, nil
}

func (s *Store) Create(ctx context.Context, a models.ProjectApplication) (models.ProjectApplication, error) {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	if a.Status == "" {
		a.Status = models.ApplicationPending
	}
	a.CreatedAt = time.Now().UTC()
	if err := s.es.Insert(ctx, entitystore.ProjectApplications, a); err != nil {
		return models.ProjectApplication{}, err
	}
	a.Normalize()
	return a, nil
}

func (s *Store) MarkApproved(ctx context.Context, id, adminID primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.ProjectApplications, id,
		entitystore.NotTerminal(models.ApplicationTerminalValues),
		bson.M{"status": models.ApplicationApproved, "reviewed_by": adminID, "reviewed_at": at})
}

func (s *Store) MarkRejected(ctx context.Context, id, adminID primitive.ObjectID, reason string, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.ProjectApplications, id,
		entitystore.NotTerminal(models.ApplicationTerminalValues),
		bson.M{
			"status":           models.ApplicationRejected,
			"reviewed_by":      adminID,
			"reviewed_at":      at,
			"rejection_reason": reason,
		})
}

// RevertToPending undoes MarkApproved when the membership step fails.
func (s *Store) RevertToPending(ctx context.Context, id primitive.ObjectID) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.ProjectApplications, id,
		entitystore.Filter{"status": models.ApplicationApproved},
		bson.M{"status": models.ApplicationPending, "reviewed_by": nil, "reviewed_at": nil})
}

func (s *Store) ListByProject(ctx context.Context, projectID primitive.ObjectID) ([]models.ProjectApplication, error) {
	var out []models.ProjectApplication
	if err := s.es.Find(ctx, entitystore.ProjectApplications, entitystore.Filter{"project_id": projectID}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}
