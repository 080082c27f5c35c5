// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotifProjectApproved     NotificationType = "project_approved"
	NotifProjectRejected     NotificationType = "project_rejected"
	NotifEventApproved       NotificationType = "event_approved"
	NotifEventRejected       NotificationType = "event_rejected"
	NotifEventProjectListed  NotificationType = "event_project_selected"
	NotifCompletionApproved  NotificationType = "completion_approved"
	NotifCompletionRejected  NotificationType = "completion_rejected"
	NotifApplicationApproved NotificationType = "application_approved"
	NotifApplicationRejected NotificationType = "application_rejected"
	NotifGroupMemberJoined   NotificationType = "group_member_joined"
	NotifGroupPost           NotificationType = "group_post"
	NotifCompanyMemberJoined NotificationType = "company_member_joined"
	NotifCompanyPost         NotificationType = "company_post"
	NotifCompanyEnded        NotificationType = "company_ended"
	NotifPostComment         NotificationType = "post_comment"
)

// RelatedIDs links a notification back to the entities it is about.
// Cascades use these fields to find notifications to delete.
type RelatedIDs struct {
	GroupID   *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`
	ProjectID *primitive.ObjectID `bson:"project_id,omitempty" json:"project_id,omitempty"`
	EventID   *primitive.ObjectID `bson:"event_id,omitempty" json:"event_id,omitempty"`
	CompanyID *primitive.ObjectID `bson:"company_id,omitempty" json:"company_id,omitempty"`
	PostID    *primitive.ObjectID `bson:"post_id,omitempty" json:"post_id,omitempty"`
}

// Notification is one in-app message for one recipient. DedupeKey is unique;
// a second write for the same transition and recipient is rejected.
type Notification struct {
	ID             primitive.ObjectID  `bson:"_id" json:"id"`
	UserID         *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	RecipientEmail string              `bson:"recipient_email,omitempty" json:"recipient_email,omitempty"`
	Type           NotificationType    `bson:"type" json:"type"`
	Title          string              `bson:"title" json:"title"`
	Message        string              `bson:"message" json:"message"`
	RelatedIDs     RelatedIDs          `bson:"related_ids" json:"related_ids"`
	DedupeKey      string              `bson:"dedupe_key,omitempty" json:"-"`
	Read           bool                `bson:"read" json:"read"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
}
