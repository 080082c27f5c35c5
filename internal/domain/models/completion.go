// internal/domain/models/completion.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdminApproval captures the admin decision on a completion request.
type AdminApproval struct {
	Approved       bool                `bson:"approved" json:"approved"`
	ApprovedBy     *primitive.ObjectID `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedReason string              `bson:"rejected_reason,omitempty" json:"rejected_reason,omitempty"`
	RejectedAt     *time.Time          `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
}

// CompletionRequest asks admins to review a finished project group.
// At most one request per group is pending at a time.
type CompletionRequest struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	GroupID      primitive.ObjectID `bson:"group_id" json:"group_id"`
	ProjectID    primitive.ObjectID `bson:"project_id,omitempty" json:"project_id,omitempty"`
	ProjectTitle string             `bson:"project_title" json:"project_title"`
	RequestedBy  primitive.ObjectID `bson:"requested_by" json:"requested_by"`

	Status    CompletionStatus `bson:"status" json:"status"`
	RawStatus string           `bson:"-" json:"-"`

	AdminApproval AdminApproval `bson:"admin_approval" json:"admin_approval"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (c *CompletionRequest) Normalize() (knownStatus bool) {
	c.ProjectTitle = strings.TrimSpace(c.ProjectTitle)
	if c.ProjectTitle == "" {
		c.ProjectTitle = "Untitled Project"
	}
	c.RawStatus = string(c.Status)
	c.Status, knownStatus = ParseCompletionStatus(c.RawStatus)
	return knownStatus
}

// MemberBadge is a badge awarded to a group member after completion.
type MemberBadge struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	GroupID   primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Badge     string             `bson:"badge" json:"badge"`
	AwardedAt time.Time          `bson:"awarded_at" json:"awarded_at"`
}

// Certificate is an issued completion certificate.
type Certificate struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	GroupID  primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	URL      string             `bson:"url" json:"url"`
	IssuedAt time.Time          `bson:"issued_at" json:"issued_at"`
}
