// internal/app/system/mailer/payload.go
package mailer

import (
	"encoding/json"
	"fmt"
)

// EndpointKey names an email endpoint on the notification service.
type EndpointKey string

const (
	SendProjectApproved       EndpointKey = "send-project-approved"
	SendProjectRejected       EndpointKey = "send-project-rejected"
	SendEventPublished        EndpointKey = "send-event-published"
	SendEventRejected         EndpointKey = "send-event-rejected"
	SendProjectReviewApproved EndpointKey = "send-project-review-approved"
	SendProjectReviewRejected EndpointKey = "send-project-review-rejected"
	SendApplicationApproved   EndpointKey = "send-application-approved"
	SendApplicationRejected   EndpointKey = "send-application-rejected"
)

type ProjectData struct {
	ProjectID    string `json:"projectId"`
	Title        string `json:"title"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	GroupID      string `json:"groupId,omitempty"`
	Reason       string `json:"rejectionReason,omitempty"`
}

type EventData struct {
	EventID        string `json:"eventId"`
	Title          string `json:"title"`
	OrganizerName  string `json:"organizerName"`
	OrganizerEmail string `json:"organizerEmail"`
	BannerURL      string `json:"bannerUrl,omitempty"`
	Reason         string `json:"rejectionReason,omitempty"`
}

type CompletionData struct {
	RequestID      string `json:"requestId"`
	GroupID        string `json:"groupId"`
	ProjectTitle   string `json:"projectTitle"`
	RecipientName  string `json:"recipientName"`
	RecipientEmail string `json:"recipientEmail"`
	Reason         string `json:"rejectedReason,omitempty"`
}

type ApplicationData struct {
	ApplicationID  string `json:"applicationId"`
	ProjectTitle   string `json:"projectTitle"`
	ApplicantName  string `json:"applicantName"`
	ApplicantEmail string `json:"applicantEmail"`
	Reason         string `json:"rejectionReason,omitempty"`
}

// Payload is the request body. Exactly one field is set, and it must be the
// shape the endpoint expects.
type Payload struct {
	ProjectData     *ProjectData     `json:"projectData,omitempty"`
	EventData       *EventData       `json:"eventData,omitempty"`
	CompletionData  *CompletionData  `json:"completionData,omitempty"`
	ApplicationData *ApplicationData `json:"applicationData,omitempty"`
}

// Response is the notification service's reply.
type Response struct {
	Success bool            `json:"success"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Validate checks that p carries exactly the shape key expects.
func (p Payload) Validate(key EndpointKey) error {
	set := 0
	for _, ok := range []bool{p.ProjectData != nil, p.EventData != nil, p.CompletionData != nil, p.ApplicationData != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("mailer: payload for %s must carry exactly one shape, has %d", key, set)
	}

	var ok bool
	switch key {
	case SendProjectApproved, SendProjectRejected:
		ok = p.ProjectData != nil
	case SendEventPublished, SendEventRejected:
		ok = p.EventData != nil
	case SendProjectReviewApproved, SendProjectReviewRejected:
		ok = p.CompletionData != nil
	case SendApplicationApproved, SendApplicationRejected:
		ok = p.ApplicationData != nil
	default:
		return fmt.Errorf("mailer: unknown endpoint %q", key)
	}
	if !ok {
		return fmt.Errorf("mailer: payload shape does not match endpoint %s", key)
	}
	return nil
}

// Recipient returns the address the payload is about, for logging.
func (p Payload) Recipient() string {
	switch {
	case p.ProjectData != nil:
		return p.ProjectData.ContactEmail
	case p.EventData != nil:
		return p.EventData.OrganizerEmail
	case p.CompletionData != nil:
		return p.CompletionData.RecipientEmail
	case p.ApplicationData != nil:
		return p.ApplicationData.ApplicantEmail
	}
	return ""
}
