// internal/domain/models/application.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectApplication is a user's request to join an approved project's group.
type ProjectApplication struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	ProjectID      primitive.ObjectID `bson:"project_id" json:"project_id"`
	ApplicantID    primitive.ObjectID `bson:"applicant_id" json:"applicant_id"`
	ApplicantEmail string             `bson:"applicant_email" json:"applicant_email"`
	ApplicantName  string             `bson:"applicant_name" json:"applicant_name"`
	Message        string             `bson:"message" json:"message"`

	Status    ApplicationStatus `bson:"status" json:"status"`
	RawStatus string            `bson:"-" json:"-"`

	ReviewedBy      *primitive.ObjectID `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	RejectionReason string              `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (a *ProjectApplication) Normalize() (knownStatus bool) {
	a.ApplicantEmail = strings.ToLower(strings.TrimSpace(a.ApplicantEmail))
	a.ApplicantName = strings.TrimSpace(a.ApplicantName)
	a.RawStatus = string(a.Status)
	a.Status, knownStatus = ParseApplicationStatus(a.RawStatus)
	return knownStatus
}
