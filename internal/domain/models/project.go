// internal/domain/models/project.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Project is a user submission that admins approve or reject.
// GroupID is set only after a successful approval created the project group.
type Project struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Title        string             `bson:"title" json:"title"`
	Description  string             `bson:"description" json:"description"`
	ContactEmail string             `bson:"contact_email" json:"contact_email"`
	ContactName  string             `bson:"contact_name" json:"contact_name"`
	OwnerUserID  primitive.ObjectID `bson:"owner_user_id" json:"owner_user_id"`

	Status ProjectStatus `bson:"status" json:"status"`
	// RawStatus is the value as stored, before canonicalization.
	RawStatus string `bson:"-" json:"-"`

	GroupID         *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`
	ApprovedBy      *primitive.ObjectID `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedBy      *primitive.ObjectID `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time          `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason string              `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Normalize fills defaults and canonicalizes status. It reports whether the
// stored status was a recognized spelling.
func (p *Project) Normalize() (knownStatus bool) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		p.Title = "Untitled Project"
	}
	p.ContactEmail = strings.ToLower(strings.TrimSpace(p.ContactEmail))
	p.ContactName = strings.TrimSpace(p.ContactName)
	p.RawStatus = string(p.Status)
	p.Status, knownStatus = ParseProjectStatus(p.RawStatus)
	return knownStatus
}
