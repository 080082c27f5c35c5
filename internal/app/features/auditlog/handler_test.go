package auditlog_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/collabhub/internal/app/features/auditlog"
	adminstore "github.com/dalemusser/collabhub/internal/app/store/admins"
	"github.com/dalemusser/collabhub/internal/app/store/audit"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/auth"
	"github.com/dalemusser/collabhub/internal/app/system/paging"
	"github.com/dalemusser/collabhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	router http.Handler
	events *audit.Store
	key    string
	fx     *testutil.Fixtures
}

func newEnv(t *testing.T) *env {
	t.Helper()
	es := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, es)
	log := zap.NewNop()
	events := audit.New(es)
	admins := adminstore.New(es)

	r := chi.NewRouter()
	r.Use(auth.LoadAPIKey(admins, log))
	r.Mount("/api/audit", auditlog.Routes(auditlog.NewHandler(events, userstore.New(es), log), admins, log))

	_, _, key := fx.CreateAdmin(testutil.TestContext(t), "admin@x.com")
	return &env{router: r, events: events, key: key, fx: fx}
}

func (e *env) get(path string) *testutil.ResponseRecorder {
	req := testutil.NewJSONRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+e.key)
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type listBody struct {
	Items []struct {
		EventType string `json:"event_type"`
		ActorID   string `json:"actor_id"`
		ActorName string `json:"actor_name"`
		TargetID  string `json:"target_id"`
	} `json:"items"`
	Total     int64 `json:"total"`
	Start     int   `json:"start"`
	End       int   `json:"end"`
	NextStart int   `json:"next_start"`
	HasPrev   bool  `json:"has_prev"`
	HasNext   bool  `json:"has_next"`
}

func TestServeList_Unauthenticated(t *testing.T) {
	e := newEnv(t)
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, testutil.NewJSONRequest(http.MethodGet, "/api/audit", nil))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestServeList_Filters(t *testing.T) {
	e := newEnv(t)
	ctx := testutil.TestContext(t)
	actor := e.fx.CreateUser(ctx, "mod@x.com", "Moderator")
	target := primitive.NewObjectID()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	for _, ev := range []audit.Event{
		{Category: audit.CategoryAdmin, EventType: audit.EventProjectApproved, ActorID: &actor.ID, TargetID: &target, Success: true, Timestamp: day},
		{Category: audit.CategoryAdmin, EventType: audit.EventEventRejected, ActorID: &actor.ID, Success: true, Timestamp: day.Add(-48 * time.Hour)},
		{Category: audit.CategorySystem, EventType: audit.EventCounterRepaired, Success: true, Timestamp: day.Add(time.Hour)},
	} {
		if err := e.events.Log(ctx, ev); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{audit.EventCounterRepaired, audit.EventProjectApproved, audit.EventEventRejected}},
		{"category", "?category=system", []string{audit.EventCounterRepaired}},
		{"event type", "?event_type=event_rejected", []string{audit.EventEventRejected}},
		{"target", "?target=" + target.Hex(), []string{audit.EventProjectApproved}},
		{"actor", "?actor=" + actor.ID.Hex(), []string{audit.EventProjectApproved, audit.EventEventRejected}},
		{"one day", "?start_date=2026-03-10&end_date=2026-03-10", []string{audit.EventCounterRepaired, audit.EventProjectApproved}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.get("/api/audit" + tt.query)
			rec.AssertStatus(t, http.StatusOK)
			var body listBody
			rec.DecodeJSON(t, &body)
			if len(body.Items) != len(tt.want) || body.Total != int64(len(tt.want)) {
				t.Fatalf("got %d items (total %d), want %v", len(body.Items), body.Total, tt.want)
			}
			for i, it := range body.Items {
				if it.EventType != tt.want[i] {
					t.Errorf("item %d = %s, want %s", i, it.EventType, tt.want[i])
				}
				if it.ActorID == actor.ID.Hex() && it.ActorName != "Moderator" {
					t.Errorf("actor name = %q, want Moderator", it.ActorName)
				}
			}
		})
	}
}

func TestServeList_BadParams(t *testing.T) {
	e := newEnv(t)
	for _, q := range []string{
		"?actor=nope",
		"?target=123",
		"?start_date=03/10/2026",
		"?end_date=tomorrow",
		"?start_date=2026-03-10&end_date=2026-03-01",
	} {
		rec := e.get("/api/audit" + q)
		rec.AssertStatus(t, http.StatusBadRequest)
		rec.AssertContains(t, `"code":"validation"`)
	}
}

func TestServeList_Pagination(t *testing.T) {
	e := newEnv(t)
	ctx := testutil.TestContext(t)
	base := time.Now().UTC().Add(-time.Hour)
	n := paging.PageSize + 5
	for i := 0; i < n; i++ {
		err := e.events.Log(ctx, audit.Event{
			Category:  audit.CategorySystem,
			EventType: audit.EventCounterRepaired,
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	var first listBody
	rec := e.get("/api/audit")
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &first)
	if len(first.Items) != paging.PageSize || !first.HasNext || first.HasPrev {
		t.Errorf("first page: %d items, has_next=%v has_prev=%v", len(first.Items), first.HasNext, first.HasPrev)
	}
	if first.Start != 1 || first.End != paging.PageSize || first.NextStart != paging.PageSize+1 {
		t.Errorf("first page range = %d-%d next %d", first.Start, first.End, first.NextStart)
	}

	var second listBody
	rec = e.get(fmt.Sprintf("/api/audit?start=%d", first.NextStart))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &second)
	if len(second.Items) != 5 || second.HasNext || !second.HasPrev || second.Total != int64(n) {
		t.Errorf("second page: %d items, has_next=%v has_prev=%v total=%d", len(second.Items), second.HasNext, second.HasPrev, second.Total)
	}
}

func TestServeTypes(t *testing.T) {
	e := newEnv(t)
	rec := e.get("/api/audit/types")
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"value":"admin"`)
	rec.AssertContains(t, audit.EventCascadeDeleted)
	rec.AssertContains(t, audit.EventCounterRepaired)
}
