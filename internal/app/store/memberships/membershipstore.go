// internal/app/store/memberships/membershipstore.go
package membershipstore

// Terminology: Member Keys
//   - UserID / user_id: the account ObjectID; zero for invitees without an account
//   - MemberKey / member_key: user id hex, or the lowercased email when UserID is zero.
//     (group_id, member_key) is unique, so a user holds at most one row per group.

import (
	"context"
	"errors"
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

var ErrDuplicateMembership = errors.New("user is already a member of this group")

// Add inserts an active member row. It does not touch the group's
// member_count; callers pair it with groupstore.AdjustMemberCount.
func (s *Store) Add(ctx context.Context, m models.GroupMember) (models.GroupMember, error) {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	m.Status = models.MemberActive
	m.MemberKey = models.MemberKey(m.UserID, m.UserEmail)
	m.JoinedAt = time.Now().UTC()
	if err := s.es.Insert(ctx, entitystore.GroupMembers, m); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return models.GroupMember{}, ErrDuplicateMembership
		}
		return models.GroupMember{}, err
	}
	m.Normalize()
	return m, nil
}

// Get returns the row for key in a group, whatever its status.
func (s *Store) Get(ctx context.Context, groupID primitive.ObjectID, key string) (models.GroupMember, error) {
	var m models.GroupMember
	err := s.es.FindOne(ctx, entitystore.GroupMembers, entitystore.Filter{"group_id": groupID, "member_key": key}, &m)
	if err != nil {
		return models.GroupMember{}, err
	}
	m.Normalize()
	return m, nil
}

// Deactivate marks an active member as removed. It returns
// entitystore.ErrConflict if the member was already removed.
func (s *Store) Deactivate(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.GroupMembers, id,
		entitystore.Filter{"status": bson.M{"$ne": models.MemberRemoved}},
		bson.M{"status": models.MemberRemoved, "removed_at": at})
}

// Reactivate restores a removed member. It returns entitystore.ErrConflict
// if the member is already active.
func (s *Store) Reactivate(ctx context.Context, id primitive.ObjectID, role models.MemberRole, at time.Time) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.GroupMembers, id,
		entitystore.Filter{"status": models.MemberRemoved},
		bson.M{"status": models.MemberActive, "role": role, "joined_at": at, "removed_at": nil})
}

// Delete removes a member row outright. Used to compensate a failed approval.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.GroupMembers, id)
}

// ListActive returns active members of a group in join order.
func (s *Store) ListActive(ctx context.Context, groupID primitive.ObjectID) ([]models.GroupMember, error) {
	return s.list(ctx, entitystore.Filter{"group_id": groupID, "status": bson.M{"$ne": models.MemberRemoved}})
}

// ListAdmins returns the active admins of a group.
func (s *Store) ListAdmins(ctx context.Context, groupID primitive.ObjectID) ([]models.GroupMember, error) {
	return s.list(ctx, entitystore.Filter{
		"group_id": groupID,
		"role":     models.RoleAdmin,
		"status":   bson.M{"$ne": models.MemberRemoved},
	})
}

func (s *Store) list(ctx context.Context, f entitystore.Filter) ([]models.GroupMember, error) {
	var out []models.GroupMember
	if err := s.es.Find(ctx, entitystore.GroupMembers, f, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

// CountActive counts the rows that member_count is derived from.
func (s *Store) CountActive(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.es.Count(ctx, entitystore.GroupMembers, entitystore.Filter{
		"group_id": groupID,
		"status":   bson.M{"$ne": models.MemberRemoved},
	})
}

// CountByGroup counts rows of any status.
func (s *Store) CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.es.Count(ctx, entitystore.GroupMembers, entitystore.Filter{"group_id": groupID})
}
