// internal/domain/models/status.go
package models

import "strings"

// Canonical status values. Documents written by older clients carry a
// handful of synonyms ("submitted", "pending", missing); the Parse*
// functions collapse them into one value at read time.

type ProjectStatus string

const (
	ProjectPending  ProjectStatus = "pending_approval"
	ProjectApproved ProjectStatus = "approved"
	ProjectRejected ProjectStatus = "rejected"
)

type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventApproved EventStatus = "approved"
	EventRejected EventStatus = "rejected"
)

type CompletionStatus string

const (
	CompletionPending  CompletionStatus = "pending_admin_approval"
	CompletionApproved CompletionStatus = "admin_approved"
	CompletionRejected CompletionStatus = "admin_rejected"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

type GroupStatus string

const (
	GroupActive                  GroupStatus = "active"
	GroupReadyForBadgeAssignment GroupStatus = "ready_for_badge_assignment"
	GroupCompleted               GroupStatus = "completed"
)

type CompanyStatus string

const (
	CompanyActive CompanyStatus = "active"
	CompanyEnded  CompanyStatus = "ended"
)

type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberRemoved MemberStatus = "removed"
)

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

func fold(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseProjectStatus maps a stored project status onto its canonical value.
// known is false when raw was not a recognized spelling; such values are
// treated as pending.
func ParseProjectStatus(raw string) (s ProjectStatus, known bool) {
	switch fold(raw) {
	case "", "submitted", "pending", "pending_approval":
		return ProjectPending, true
	case "approved":
		return ProjectApproved, true
	case "rejected":
		return ProjectRejected, true
	}
	return ProjectPending, false
}

// Terminal reports whether no further admin transition is allowed.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectApproved || s == ProjectRejected
}

func ParseEventStatus(raw string) (s EventStatus, known bool) {
	switch fold(raw) {
	case "", "pending", "submitted", "pending_approval":
		return EventPending, true
	case "approved", "published":
		return EventApproved, true
	case "rejected":
		return EventRejected, true
	}
	return EventPending, false
}

func (s EventStatus) Terminal() bool {
	return s == EventApproved || s == EventRejected
}

func ParseCompletionStatus(raw string) (s CompletionStatus, known bool) {
	switch fold(raw) {
	case "", "pending", "pending_admin_approval":
		return CompletionPending, true
	case "admin_approved", "approved":
		return CompletionApproved, true
	case "admin_rejected", "rejected":
		return CompletionRejected, true
	}
	return CompletionPending, false
}

func (s CompletionStatus) Terminal() bool {
	return s == CompletionApproved || s == CompletionRejected
}

func ParseApplicationStatus(raw string) (s ApplicationStatus, known bool) {
	switch fold(raw) {
	case "", "pending", "submitted":
		return ApplicationPending, true
	case "approved", "accepted":
		return ApplicationApproved, true
	case "rejected", "declined":
		return ApplicationRejected, true
	}
	return ApplicationPending, false
}

func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

func ParseGroupStatus(raw string) GroupStatus {
	switch fold(raw) {
	case "ready_for_badge_assignment":
		return GroupReadyForBadgeAssignment
	case "completed":
		return GroupCompleted
	}
	return GroupActive
}

func ParseCompanyStatus(raw string) CompanyStatus {
	if fold(raw) == "ended" {
		return CompanyEnded
	}
	return CompanyActive
}

func ParseMemberStatus(raw string) MemberStatus {
	if fold(raw) == "removed" {
		return MemberRemoved
	}
	return MemberActive
}

func ParseMemberRole(raw string) MemberRole {
	if fold(raw) == "admin" {
		return RoleAdmin
	}
	return RoleMember
}

// Terminal status spellings, used by compare-and-set conditions so that
// any non-terminal stored value (including legacy synonyms) can transition.
var (
	ProjectTerminalValues     = []string{string(ProjectApproved), string(ProjectRejected)}
	EventTerminalValues       = []string{string(EventApproved), string(EventRejected), "published"}
	CompletionTerminalValues  = []string{string(CompletionApproved), string(CompletionRejected), "approved", "rejected"}
	ApplicationTerminalValues = []string{string(ApplicationApproved), string(ApplicationRejected), "accepted", "declined"}
)
