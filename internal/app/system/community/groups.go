package community

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Membership reports what an add did. Joined is false when the person was
// already an active member; nothing was written in that case.
type Membership struct {
	MemberID    primitive.ObjectID `json:"member_id"`
	UserID      primitive.ObjectID `json:"user_id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Joined      bool               `json:"joined"`
	Reactivated bool               `json:"reactivated"`
	JoinedAt    time.Time          `json:"joined_at"`
}

// AddGroupMember makes m an active member of the group and increments
// member_count exactly once. A removed row is reactivated rather than
// duplicated.
func (s *Service) AddGroupMember(ctx context.Context, groupID primitive.ObjectID, m Member) (Membership, error) {
	if m.UserID.IsZero() && m.Email == "" {
		return Membership{}, apperr.Validation("a member needs a user id or an email")
	}
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return Membership{}, apperr.FromStore(err, "group", groupID.Hex())
	}
	m, err := s.resolve(ctx, m, fanout.FallbackTeamMember)
	if err != nil {
		return Membership{}, apperr.FromStore(err, "user", m.Email)
	}

	res := Membership{UserID: m.UserID, Email: m.Email, Name: m.Name}
	var undo func(context.Context) error

	row, err := s.members.Add(ctx, models.GroupMember{
		GroupID:     groupID,
		UserID:      m.UserID,
		UserEmail:   m.Email,
		DisplayName: m.Name,
		Role:        m.Role,
	})
	switch {
	case err == nil:
		res.MemberID = row.ID
		res.JoinedAt = row.JoinedAt
		undo = func(ctx context.Context) error { return s.members.Delete(ctx, row.ID) }

	case errors.Is(err, membershipstore.ErrDuplicateMembership):
		existing, gerr := s.members.Get(ctx, groupID, models.MemberKey(m.UserID, m.Email))
		if gerr != nil {
			return Membership{}, apperr.FromStore(gerr, "group member", groupID.Hex())
		}
		res.MemberID = existing.ID
		if existing.Status == models.MemberActive {
			return res, nil
		}
		now := time.Now().UTC()
		rerr := s.members.Reactivate(ctx, existing.ID, m.Role, now)
		if errors.Is(rerr, entitystore.ErrConflict) {
			// Reactivated concurrently; that call owns the increment.
			return res, nil
		}
		if rerr != nil {
			return Membership{}, apperr.FromStore(rerr, "group member", existing.ID.Hex())
		}
		res.Reactivated = true
		res.JoinedAt = now
		undo = func(ctx context.Context) error { return s.members.Deactivate(ctx, existing.ID, now) }

	default:
		return Membership{}, apperr.FromStore(err, "group member", groupID.Hex())
	}

	if err := s.groups.AdjustMemberCount(ctx, groupID, 1); err != nil {
		if uerr := undo(ctx); uerr != nil {
			s.log.Error("community: could not undo member row after counter failure",
				zap.String("group_id", groupID.Hex()),
				zap.String("member_id", res.MemberID.Hex()),
				zap.Error(uerr))
		}
		return Membership{}, apperr.FromStore(err, "group", groupID.Hex())
	}
	res.Joined = true
	return res, nil
}

// AnnounceGroupJoin tells the group's other members that someone joined.
// key identifies the join so a retried announcement writes nothing twice.
func (s *Service) AnnounceGroupJoin(ctx context.Context, groupID primitive.ObjectID, res Membership, key string) fanout.Result {
	gid := groupID
	return s.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifGroupMemberJoined,
		Key:     key,
		Title:   "New group member",
		Related: models.RelatedIDs{GroupID: &gid},
		Subject: &fanout.Person{UserID: res.UserID, Email: res.Email, Name: res.Name},
		Message: func(name string) string {
			return fmt.Sprintf("%s joined your group.", name)
		},
	}, fanout.GroupMembers(groupID), res.UserID)
}

// JoinGroup adds the signed-in user to a group as a member.
func (s *Service) JoinGroup(ctx context.Context, groupID, userID primitive.ObjectID) (Membership, error) {
	res, err := s.AddGroupMember(ctx, groupID, Member{UserID: userID, Role: models.RoleMember})
	if err != nil || !res.Joined {
		return res, err
	}
	key := fmt.Sprintf("group_member_joined:%s:%d", res.MemberID.Hex(), res.JoinedAt.UnixMilli())
	s.AnnounceGroupJoin(ctx, groupID, res, key)
	s.publish("group.member_joined", "group", groupID, userID, map[string]string{"member_id": res.MemberID.Hex()})
	return res, nil
}

// LeaveGroup removes the user from a group and decrements member_count.
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID primitive.ObjectID) error {
	m, err := s.members.Get(ctx, groupID, models.MemberKey(userID, ""))
	if err != nil {
		return apperr.FromStore(err, "group member", userID.Hex())
	}
	if m.Status == models.MemberRemoved {
		return apperr.Conflict("user %s is not an active member of group %s", userID.Hex(), groupID.Hex())
	}

	if err := s.members.Deactivate(ctx, m.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return apperr.Conflict("user %s already left group %s", userID.Hex(), groupID.Hex())
		}
		return apperr.FromStore(err, "group member", m.ID.Hex())
	}
	if err := s.groups.AdjustMemberCount(ctx, groupID, -1); err != nil {
		if uerr := s.members.Reactivate(ctx, m.ID, m.Role, m.JoinedAt); uerr != nil {
			s.log.Error("community: could not restore member after counter failure",
				zap.String("group_id", groupID.Hex()),
				zap.String("member_id", m.ID.Hex()),
				zap.Error(uerr))
		}
		return apperr.FromStore(err, "group", groupID.Hex())
	}
	s.publish("group.member_left", "group", groupID, userID, nil)
	return nil
}
