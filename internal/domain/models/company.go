// internal/domain/models/company.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Company is a professional community. Once ended it accepts no new
// members, posts, or comments, and only then may its admins leave.
type Company struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"created_by"`

	Status      CompanyStatus `bson:"status" json:"status"`
	MemberCount int64         `bson:"member_count" json:"member_count"`
	PostCount   int64         `bson:"post_count" json:"post_count"`
	EndedAt     *time.Time    `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	LastActivityAt *time.Time `bson:"last_activity_at,omitempty" json:"last_activity_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (c *Company) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = "Unnamed Company"
	}
	c.Status = ParseCompanyStatus(string(c.Status))
	if c.MemberCount < 0 {
		c.MemberCount = 0
	}
}

// CompanyMember joins a user to a company.
type CompanyMember struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	CompanyID   primitive.ObjectID `bson:"company_id" json:"company_id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserEmail   string             `bson:"user_email" json:"user_email"`
	DisplayName string             `bson:"display_name" json:"display_name"`
	MemberKey   string             `bson:"member_key" json:"member_key"`
	Role        MemberRole         `bson:"role" json:"role"`
	Status      MemberStatus       `bson:"status" json:"status"`
	JoinedAt    time.Time          `bson:"joined_at" json:"joined_at"`
	RemovedAt   *time.Time         `bson:"removed_at,omitempty" json:"removed_at,omitempty"`
}

func (m *CompanyMember) Normalize() {
	m.UserEmail = strings.ToLower(strings.TrimSpace(m.UserEmail))
	m.Role = ParseMemberRole(string(m.Role))
	m.Status = ParseMemberStatus(string(m.Status))
	if m.MemberKey == "" {
		m.MemberKey = MemberKey(m.UserID, m.UserEmail)
	}
}
