// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/audit"
	"github.com/dalemusser/collabhub/internal/app/system/paging"
)

// listItem represents a single audit event row.
type listItem struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"`
	ActorName     string            `json:"actor_name,omitempty"` // Resolved from ActorID
	TargetType    string            `json:"target_type,omitempty"`
	TargetID      string            `json:"target_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// listResponse is the body of GET /api/audit.
type listResponse struct {
	Items []listItem `json:"items"`
	Total int64      `json:"total"`

	paging.Range
	paging.Result
}

// categoryOption represents a category for filtering.
type categoryOption struct {
	Value      string   `json:"value"`
	Label      string   `json:"label"`
	EventTypes []string `json:"event_types"`
}

// allCategories returns the available categories and their event types.
func allCategories() []categoryOption {
	return []categoryOption{
		{Value: audit.CategoryAdmin, Label: "Administration", EventTypes: eventTypesForCategory(audit.CategoryAdmin)},
		{Value: audit.CategorySystem, Label: "System", EventTypes: eventTypesForCategory(audit.CategorySystem)},
	}
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	adminEvents := []string{
		audit.EventProjectApproved,
		audit.EventProjectRejected,
		audit.EventEventApproved,
		audit.EventEventRejected,
		audit.EventCompletionApproved,
		audit.EventCompletionRejected,
		audit.EventApplicationApproved,
		audit.EventApplicationRejected,
		audit.EventCompanyEnded,
		audit.EventCascadeDeleted,
		audit.EventTransitionFailed,
	}

	systemEvents := []string{
		audit.EventCounterRepaired,
	}

	switch category {
	case audit.CategoryAdmin:
		return adminEvents
	case audit.CategorySystem:
		return systemEvents
	case "":
		all := make([]string, 0, len(adminEvents)+len(systemEvents))
		all = append(all, adminEvents...)
		all = append(all, systemEvents...)
		return all
	default:
		return nil
	}
}
