// internal/app/store/projects/projectstore.go
package projectstore

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

// GetByID loads a project and normalizes it. The returned RawStatus holds the
// stored spelling so callers can detect legacy values.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error) {
	var p models.Project
	if err := s.es.Get(ctx, entitystore.Projects, id, &p); err != nil {
		return models.Project{}, err
	}
	p.Normalize()
	return p, nil
}

func (s *Store) Create(ctx context.Context, p models.Project) (models.Project, error) {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Status == "" {
		p.Status = models.ProjectPending
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.Projects, p); err != nil {
		return models.Project{}, err
	}
	p.Normalize()
	return p, nil
}

// MarkApproved moves a non-terminal project to approved and links its group.
// It returns entitystore.ErrConflict if the project already reached a
// terminal status.
func (s *Store) MarkApproved(ctx context.Context, id, adminID, groupID primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Projects, id,
		entitystore.NotTerminal(models.ProjectTerminalValues),
		bson.M{
			"status":      models.ProjectApproved,
			"approved_by": adminID,
			"approved_at": at,
			"group_id":    groupID,
			"updated_at":  at,
		})
}

// MarkRejected moves a non-terminal project to rejected.
func (s *Store) MarkRejected(ctx context.Context, id, adminID primitive.ObjectID, reason string, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Projects, id,
		entitystore.NotTerminal(models.ProjectTerminalValues),
		bson.M{
			"status":           models.ProjectRejected,
			"rejected_by":      adminID,
			"rejected_at":      at,
			"rejection_reason": reason,
			"updated_at":       at,
		})
}

// ListByIDs returns the projects that exist among ids. Missing ids are skipped.
func (s *Store) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Project
	if err := s.es.Find(ctx, entitystore.Projects, entitystore.Filter{"_id": bson.M{"$in": ids}}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

// ListByStatus returns projects whose canonical status is st.
func (s *Store) ListByStatus(ctx context.Context, st models.ProjectStatus) ([]models.Project, error) {
	var all []models.Project
	if err := s.es.Find(ctx, entitystore.Projects, entitystore.Filter{}, &all); err != nil {
		return nil, err
	}
	out := make([]models.Project, 0, len(all))
	for _, p := range all {
		p.Normalize()
		if p.Status == st {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.Projects, id)
}
