// internal/domain/models/event.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event is an organizer-submitted event. Approving an event publishes it;
// it never creates a group.
type Event struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	Title          string             `bson:"title" json:"title"`
	Description    string             `bson:"description" json:"description"`
	OrganizerEmail string             `bson:"organizer_email" json:"organizer_email"`
	OrganizerName  string             `bson:"organizer_name" json:"organizer_name"`
	BannerURL      string             `bson:"banner_url,omitempty" json:"banner_url,omitempty"`

	SelectedProjectIDs []primitive.ObjectID `bson:"selected_project_ids" json:"selected_project_ids"`

	Status    EventStatus `bson:"status" json:"status"`
	RawStatus string      `bson:"-" json:"-"`
	IsActive  bool        `bson:"is_active" json:"is_active"`

	ApprovedBy      *primitive.ObjectID `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedBy      *primitive.ObjectID `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time          `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason string              `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (e *Event) Normalize() (knownStatus bool) {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		e.Title = "Untitled Event"
	}
	e.OrganizerEmail = strings.ToLower(strings.TrimSpace(e.OrganizerEmail))
	e.OrganizerName = strings.TrimSpace(e.OrganizerName)
	if e.SelectedProjectIDs == nil {
		e.SelectedProjectIDs = []primitive.ObjectID{}
	}
	e.RawStatus = string(e.Status)
	e.Status, knownStatus = ParseEventStatus(e.RawStatus)
	return knownStatus
}

// EventRegistration records a user signing up for an event.
type EventRegistration struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	EventID   primitive.ObjectID `bson:"event_id" json:"event_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Email     string             `bson:"email" json:"email"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
