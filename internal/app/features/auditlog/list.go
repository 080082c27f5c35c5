// internal/app/features/auditlog/list.go
package auditlog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/audit"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/paging"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServeList handles GET /api/audit.
//
// Query parameters: category, event_type, actor, target (hex ids),
// start_date and end_date (YYYY-MM-DD, UTC, inclusive), and start (1-based).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	start := paging.ParseStart(r)
	filter.Offset = paging.Offset(start)
	filter.Limit = paging.LimitPlusOne()

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Audit.Query(ctx, filter)
	if err != nil {
		h.Log.Error("failed to query audit events", zap.Error(err))
		h.fail(w, apperr.FromStore(err, "audit events", ""))
		return
	}
	total, err := h.Audit.CountByFilter(ctx, filter)
	if err != nil {
		h.Log.Error("failed to count audit events", zap.Error(err))
		h.fail(w, apperr.FromStore(err, "audit events", ""))
		return
	}

	pg := paging.TrimPage(&events, start)
	items := h.buildItems(r, events)

	writeJSON(w, listResponse{
		Items:  items,
		Total:  total,
		Range:  paging.ComputeRange(start, len(items)),
		Result: pg,
	})
}

// ServeTypes handles GET /api/audit/types: the categories and event types
// the list can be filtered by.
func (h *Handler) ServeTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, allCategories())
}

func parseFilter(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(q.Get("category")),
		EventType: strings.TrimSpace(q.Get("event_type")),
	}

	for param, dst := range map[string]**primitive.ObjectID{"actor": &filter.ActorID, "target": &filter.TargetID} {
		raw := strings.TrimSpace(q.Get(param))
		if raw == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return filter, apperr.Validation("invalid %s id %q", param, raw)
		}
		*dst = &id
	}

	if s := strings.TrimSpace(q.Get("start_date")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return filter, apperr.Validation("start_date must be YYYY-MM-DD")
		}
		filter.StartTime = &t
	}
	if s := strings.TrimSpace(q.Get("end_date")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return filter, apperr.Validation("end_date must be YYYY-MM-DD")
		}
		// End of day
		endOfDay := t.Add(24*time.Hour - time.Millisecond)
		filter.EndTime = &endOfDay
	}
	if filter.StartTime != nil && filter.EndTime != nil && filter.EndTime.Before(*filter.StartTime) {
		return filter, apperr.Validation("end_date is before start_date")
	}
	return filter, nil
}

// buildItems converts events to rows, resolving actor names in one batch.
// A failed lookup leaves names blank.
func (h *Handler) buildItems(r *http.Request, events []audit.Event) []listItem {
	seen := make(map[primitive.ObjectID]struct{})
	ids := make([]primitive.ObjectID, 0, len(events))
	for _, e := range events {
		if e.ActorID == nil {
			continue
		}
		if _, ok := seen[*e.ActorID]; !ok {
			seen[*e.ActorID] = struct{}{}
			ids = append(ids, *e.ActorID)
		}
	}

	names := map[primitive.ObjectID]string{}
	if len(ids) > 0 && h.Users != nil {
		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "audit actor names")
		users, err := h.Users.ListByIDs(ctx, ids)
		cancel()
		if err != nil {
			h.Log.Warn("failed to fetch user names for audit log", zap.Error(err))
		}
		for id, u := range users {
			names[id] = u.DisplayName
		}
	}

	items := make([]listItem, 0, len(events))
	for _, e := range events {
		item := listItem{
			ID:            e.ID.Hex(),
			Timestamp:     e.Timestamp,
			Category:      e.Category,
			EventType:     e.EventType,
			TargetType:    e.TargetType,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		}
		if e.ActorID != nil {
			item.ActorID = e.ActorID.Hex()
			item.ActorName = names[*e.ActorID]
		}
		if e.TargetID != nil {
			item.TargetID = e.TargetID.Hex()
		}
		items = append(items, item)
	}
	return items
}

// fail writes err as JSON, hiding the detail of unclassified errors.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.HTTPStatus(err) == http.StatusInternalServerError {
		err = errors.New("internal error")
	}
	apperr.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
