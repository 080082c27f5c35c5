package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AuditQuery filters the audit trail. Zero fields are not sent.
type AuditQuery struct {
	Category  string
	EventType string
	ActorID   string
	TargetID  string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Start     int    // 1-based
}

// AuditEvent is one row of the audit trail.
type AuditEvent struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"`
	ActorName     string            `json:"actor_name,omitempty"`
	TargetType    string            `json:"target_type,omitempty"`
	TargetID      string            `json:"target_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// AuditPage is one page of the audit trail.
type AuditPage struct {
	Items     []AuditEvent `json:"items"`
	Total     int64        `json:"total"`
	Start     int          `json:"start"`
	End       int          `json:"end"`
	PrevStart int          `json:"prev_start"`
	NextStart int          `json:"next_start"`
	HasPrev   bool         `json:"has_prev"`
	HasNext   bool         `json:"has_next"`
}

// Audit fetches one page of audit events, most recent first.
func (c *Client) Audit(ctx context.Context, q AuditQuery) (*AuditPage, error) {
	v := url.Values{}
	for key, val := range map[string]string{
		"category":   q.Category,
		"event_type": q.EventType,
		"actor":      q.ActorID,
		"target":     q.TargetID,
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	if q.Start > 1 {
		v.Set("start", strconv.Itoa(q.Start))
	}
	path := "/api/audit"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var out AuditPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
