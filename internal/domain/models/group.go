// internal/domain/models/group.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupCompletion tracks the "ready for completion" cycle of a group.
// It is cleared when an admin rejects a completion request.
type GroupCompletion struct {
	ReadyForCompletion bool                `bson:"ready_for_completion" json:"ready_for_completion"`
	RequestID          *primitive.ObjectID `bson:"request_id,omitempty" json:"request_id,omitempty"`
	RequestedAt        *time.Time          `bson:"requested_at,omitempty" json:"requested_at,omitempty"`
	ApprovedAt         *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
}

// Group is a collaboration space. Groups are created by project approval;
// EventID is only present on legacy documents.
//
// NOTE:
//   - Members live in the group_members collection.
//   - MemberCount and PostCount are denormalized and only ever adjusted
//     with atomic increments.
type Group struct {
	ID           primitive.ObjectID  `bson:"_id" json:"id"`
	Name         string              `bson:"name" json:"name"`
	Description  string              `bson:"description" json:"description"`
	ContactEmail string              `bson:"contact_email" json:"contact_email"`
	ContactName  string              `bson:"contact_name" json:"contact_name"`
	ProjectID    *primitive.ObjectID `bson:"project_id,omitempty" json:"project_id,omitempty"`
	EventID      *primitive.ObjectID `bson:"event_id,omitempty" json:"event_id,omitempty"`
	CreatedBy    primitive.ObjectID  `bson:"created_by" json:"created_by"`

	MemberCount int64 `bson:"member_count" json:"member_count"`
	PostCount   int64 `bson:"post_count" json:"post_count"`

	Status           GroupStatus     `bson:"status" json:"status"`
	CompletionStatus GroupCompletion `bson:"completion_status" json:"completion_status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (g *Group) Normalize() {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		g.Name = "Untitled Group"
	}
	g.Status = ParseGroupStatus(string(g.Status))
	if g.MemberCount < 0 {
		g.MemberCount = 0
	}
	if g.PostCount < 0 {
		g.PostCount = 0
	}
}

// GroupMember joins a user to a group. MemberKey is unique per group and is
// the user id hex, or the lowercased email when the member has no account yet.
type GroupMember struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	GroupID     primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserEmail   string             `bson:"user_email" json:"user_email"`
	DisplayName string             `bson:"display_name" json:"display_name"`
	MemberKey   string             `bson:"member_key" json:"member_key"`
	Role        MemberRole         `bson:"role" json:"role"`
	Status      MemberStatus       `bson:"status" json:"status"`
	JoinedAt    time.Time          `bson:"joined_at" json:"joined_at"`
	RemovedAt   *time.Time         `bson:"removed_at,omitempty" json:"removed_at,omitempty"`
}

func (m *GroupMember) Normalize() {
	m.UserEmail = strings.ToLower(strings.TrimSpace(m.UserEmail))
	m.Role = ParseMemberRole(string(m.Role))
	m.Status = ParseMemberStatus(string(m.Status))
	if m.MemberKey == "" {
		m.MemberKey = MemberKey(m.UserID, m.UserEmail)
	}
}

// MemberKey derives the per-parent uniqueness key for a member row.
func MemberKey(userID primitive.ObjectID, email string) string {
	if !userID.IsZero() {
		return userID.Hex()
	}
	return strings.ToLower(strings.TrimSpace(email))
}
