package groupstore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"github.com/dalemusser/collabhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreate_Defaults(t *testing.T) {
	store := groupstore.New(testutil.NewStore(t))
	ctx := testutil.TestContext(t)

	g, err := store.Create(ctx, models.Group{Name: "  Crew  ", MemberCount: 7, PostCount: 3})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := store.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.GroupActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if got.MemberCount != 0 || got.PostCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", got.MemberCount, got.PostCount)
	}
	if got.Name != "Crew" {
		t.Errorf("name = %q, want trimmed", got.Name)
	}
}

func TestCreate_OneGroupPerProject(t *testing.T) {
	store := groupstore.New(testutil.NewStore(t))
	ctx := testutil.TestContext(t)
	projectID := primitive.NewObjectID()

	if _, err := store.Create(ctx, models.Group{Name: "First", ProjectID: &projectID}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := store.Create(ctx, models.Group{Name: "Second", ProjectID: &projectID})
	if !errors.Is(err, groupstore.ErrProjectHasGroup) {
		t.Errorf("second Create error = %v, want ErrProjectHasGroup", err)
	}

	// Groups without a project are not constrained.
	for i := 0; i < 2; i++ {
		if _, err := store.Create(ctx, models.Group{Name: "Free"}); err != nil {
			t.Fatalf("Create without project: %v", err)
		}
	}

	g, err := store.GetByProject(ctx, projectID)
	if err != nil || g.Name != "First" {
		t.Errorf("GetByProject = %q, %v; want First", g.Name, err)
	}
}

func TestMemberCount(t *testing.T) {
	store := groupstore.New(testutil.NewStore(t))
	ctx := testutil.TestContext(t)
	g, _ := store.Create(ctx, models.Group{Name: "Crew"})

	for _, d := range []int64{1, 1, 1, -1} {
		if err := store.AdjustMemberCount(ctx, g.ID, d); err != nil {
			t.Fatalf("AdjustMemberCount(%d): %v", d, err)
		}
	}
	if err := store.RepairMemberCount(ctx, g.ID, 5, 1); !errors.Is(err, entitystore.ErrConflict) {
		t.Errorf("repair from a stale observation error = %v, want ErrConflict", err)
	}
	if err := store.RepairMemberCount(ctx, g.ID, 2, 4); err != nil {
		t.Fatalf("RepairMemberCount: %v", err)
	}
	got, _ := store.GetByID(ctx, g.ID)
	if got.MemberCount != 4 {
		t.Errorf("member_count = %d, want 4", got.MemberCount)
	}
}

func TestCompletionCycle(t *testing.T) {
	store := groupstore.New(testutil.NewStore(t))
	ctx := testutil.TestContext(t)
	g, _ := store.Create(ctx, models.Group{Name: "Crew"})
	now := time.Now().UTC()

	req := primitive.NewObjectID()
	if err := store.RequestCompletion(ctx, g.ID, req, now); err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	if err := store.RequestCompletion(ctx, g.ID, primitive.NewObjectID(), now); !errors.Is(err, entitystore.ErrConflict) {
		t.Errorf("second request error = %v, want ErrConflict", err)
	}

	if err := store.ResetCompletion(ctx, g.ID, now); err != nil {
		t.Fatalf("ResetCompletion: %v", err)
	}
	got, _ := store.GetByID(ctx, g.ID)
	if got.CompletionStatus.ReadyForCompletion || got.CompletionStatus.RequestID != nil {
		t.Errorf("completion status = %+v, want cleared", got.CompletionStatus)
	}
	if err := store.RequestCompletion(ctx, g.ID, req, now); err != nil {
		t.Fatalf("request after reset: %v", err)
	}

	if err := store.MarkReadyForBadges(ctx, g.ID, now); err != nil {
		t.Fatalf("MarkReadyForBadges: %v", err)
	}
	got, _ = store.GetByID(ctx, g.ID)
	if got.Status != models.GroupReadyForBadgeAssignment || got.CompletionStatus.ApprovedAt == nil {
		t.Errorf("group = %+v, want ready for badges with approved_at", got)
	}
	if err := store.RequestCompletion(ctx, g.ID, primitive.NewObjectID(), now); !errors.Is(err, entitystore.ErrConflict) {
		t.Errorf("request on a finished group error = %v, want ErrConflict", err)
	}
}

func TestDeleteAndListIDs(t *testing.T) {
	store := groupstore.New(testutil.NewStore(t))
	ctx := testutil.TestContext(t)
	a, _ := store.Create(ctx, models.Group{Name: "A"})
	b, _ := store.Create(ctx, models.Group{Name: "B"})

	if err := store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, a.ID); !errors.Is(err, entitystore.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	ids, err := store.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != b.ID {
		t.Errorf("ids = %v, want [%s]", ids, b.ID.Hex())
	}
}
