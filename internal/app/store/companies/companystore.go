// internal/app/store/companies/companystore.go
package companystore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store covers both companies and company_members.
type Store struct {
	es entitystore.Store
}

var ErrDuplicateMembership = errors.New("user is already a member of this company")

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Company, error) {
	var c models.Company
	if err := s.es.Get(ctx, entitystore.Companies, id, &c); err != nil {
		return models.Company{}, err
	}
	c.Normalize()
	return c, nil
}

func (s *Store) Create(ctx context.Context, c models.Company) (models.Company, error) {
	now := time.Now().UTC()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	c.Status = models.CompanyActive
	c.MemberCount = 0
	c.PostCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.Companies, c); err != nil {
		return models.Company{}, err
	}
	c.Normalize()
	return c, nil
}

// notEnded matches a company that still accepts activity, under any stored
// spelling of the ended status.
func notEnded() entitystore.Filter {
	return entitystore.NotTerminal([]string{string(models.CompanyEnded), "Ended", "ENDED"})
}

// End closes an active company. It returns entitystore.ErrConflict if the
// company has already ended.
func (s *Store) End(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Companies, id,
		notEnded(),
		bson.M{"status": models.CompanyEnded, "ended_at": at, "updated_at": at})
}

// AdmitMember increments member_count only while the company has not ended,
// so a join racing End either lands before it or fails with
// entitystore.ErrConflict.
func (s *Store) AdmitMember(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Apply(ctx, entitystore.Companies, id, notEnded(),
		entitystore.Mutation{Inc: bson.M{"member_count": 1}})
}

// AdmitPost is AdmitMember for post_count.
func (s *Store) AdmitPost(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Apply(ctx, entitystore.Companies, id, notEnded(),
		entitystore.Mutation{Inc: bson.M{"post_count": 1}})
}

// TouchActivity stamps last_activity_at while the company has not ended.
// Comments use it to order themselves against End.
func (s *Store) TouchActivity(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Companies, id,
		notEnded(),
		bson.M{"last_activity_at": at})
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.Companies, id)
}

func (s *Store) AdjustMemberCount(ctx context.Context, id primitive.ObjectID, delta int64) error {
	return entitystore.Increment(ctx, s.es, entitystore.Companies, id, "member_count", delta)
}

func (s *Store) AdjustPostCount(ctx context.Context, id primitive.ObjectID, delta int64) error {
	return entitystore.Increment(ctx, s.es, entitystore.Companies, id, "post_count", delta)
}

// RepairMemberCount sets member_count to actual only if it still holds observed.
func (s *Store) RepairMemberCount(ctx context.Context, id primitive.ObjectID, observed, actual int64) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Companies, id,
		entitystore.CounterIs("member_count", observed),
		bson.M{"member_count": actual})
}

func (s *Store) ListIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	return s.es.IDs(ctx, entitystore.Companies, entitystore.Filter{})
}

// AddMember inserts an active member row without touching member_count.
func (s *Store) AddMember(ctx context.Context, m models.CompanyMember) (models.CompanyMember, error) {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	m.Status = models.MemberActive
	m.MemberKey = models.MemberKey(m.UserID, m.UserEmail)
	m.JoinedAt = time.Now().UTC()
	if err := s.es.Insert(ctx, entitystore.CompanyMembers, m); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return models.CompanyMember{}, ErrDuplicateMembership
		}
		return models.CompanyMember{}, err
	}
	m.Normalize()
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, companyID primitive.ObjectID, key string) (models.CompanyMember, error) {
	var m models.CompanyMember
	err := s.es.FindOne(ctx, entitystore.CompanyMembers, entitystore.Filter{"company_id": companyID, "member_key": key}, &m)
	if err != nil {
		return models.CompanyMember{}, err
	}
	m.Normalize()
	return m, nil
}

func (s *Store) DeactivateMember(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.CompanyMembers, id,
		entitystore.Filter{"status": bson.M{"$ne": models.MemberRemoved}},
		bson.M{"status": models.MemberRemoved, "removed_at": at})
}

func (s *Store) ReactivateMember(ctx context.Context, id primitive.ObjectID, role models.MemberRole, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.CompanyMembers, id,
		entitystore.Filter{"status": models.MemberRemoved},
		bson.M{"status": models.MemberActive, "role": role, "joined_at": at, "removed_at": nil})
}

func (s *Store) DeleteMember(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.CompanyMembers, id)
}

func (s *Store) ListActiveMembers(ctx context.Context, companyID primitive.ObjectID) ([]models.CompanyMember, error) {
	var out []models.CompanyMember
	f := entitystore.Filter{"company_id": companyID, "status": bson.M{"$ne": models.MemberRemoved}}
	if err := s.es.Find(ctx, entitystore.CompanyMembers, f, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

func (s *Store) CountActiveMembers(ctx context.Context, companyID primitive.ObjectID) (int64, error) {
	return s.es.Count(ctx, entitystore.CompanyMembers, entitystore.Filter{
		"company_id": companyID,
		"status":     bson.M{"$ne": models.MemberRemoved},
	})
}
