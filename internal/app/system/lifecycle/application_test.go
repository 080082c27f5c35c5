package lifecycle_test

import (
	"errors"
	"sync"
	"testing"

	applicationstore "github.com/dalemusser/collabhub/internal/app/store/applications"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	notificationstore "github.com/dalemusser/collabhub/internal/app/store/notifications"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestApproveApplication_AddsMember(t *testing.T) {
	h := newHarness(t)
	p, gid := h.approvedProject(t, "Widget", "a@x.com")
	owner := h.fx.UserFor(h.ctx, "a@x.com")
	applicant := h.fx.CreateUser(h.ctx, "b@x.com", "Bea")
	app := h.fx.CreateApplication(h.ctx, p.ID, applicant)

	out, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin)
	if err != nil {
		t.Fatalf("ApproveApplication failed: %v", err)
	}
	if out.GroupID != gid.Hex() || len(out.Warnings) != 0 {
		t.Errorf("outcome = %+v", out)
	}

	g, _ := groupstore.New(h.es).GetByID(h.ctx, gid)
	if g.MemberCount != 2 {
		t.Errorf("MemberCount = %d, want 2", g.MemberCount)
	}

	ns := notificationstore.New(h.es)
	joined, _ := ns.ListByType(h.ctx, models.NotifGroupMemberJoined)
	if len(joined) != 1 || joined[0].UserID == nil || *joined[0].UserID != owner.ID {
		t.Errorf("group_member_joined = %+v, want one for the owner", joined)
	}
	approved, _ := ns.ListByType(h.ctx, models.NotifApplicationApproved)
	if len(approved) != 1 || approved[0].UserID == nil || *approved[0].UserID != applicant.ID {
		t.Errorf("application_approved = %+v, want one for the applicant", approved)
	}

	got, _ := applicationstore.New(h.es).GetByID(h.ctx, app.ID)
	if got.Status != models.ApplicationApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
	if n := h.mail.SentTo(mailer.SendApplicationApproved); n != 1 {
		t.Errorf("application emails = %d, want 1", n)
	}

	if _, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second approve error = %v, want conflict", err)
	}
	g, _ = groupstore.New(h.es).GetByID(h.ctx, gid)
	if g.MemberCount != 2 {
		t.Errorf("MemberCount after retry = %d, want 2", g.MemberCount)
	}
}

func TestApproveApplication_ConcurrentCountsMatch(t *testing.T) {
	h := newHarness(t)
	p, gid := h.approvedProject(t, "Widget", "a@x.com")

	var apps []models.ProjectApplication
	for _, email := range []string{"b@x.com", "c@x.com", "d@x.com"} {
		apps = append(apps, h.fx.CreateApplication(h.ctx, p.ID, h.fx.CreateUser(h.ctx, email, "")))
	}

	var wg sync.WaitGroup
	for _, a := range apps {
		wg.Add(1)
		go func(id primitive.ObjectID) {
			defer wg.Done()
			if _, err := h.eng.ApproveApplication(h.ctx, id, h.admin); err != nil {
				t.Errorf("ApproveApplication(%s): %v", id.Hex(), err)
			}
		}(a.ID)
	}
	wg.Wait()

	g, _ := groupstore.New(h.es).GetByID(h.ctx, gid)
	active, err := membershipstore.New(h.es).CountActive(h.ctx, gid)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if g.MemberCount != 4 || active != 4 {
		t.Errorf("MemberCount = %d, active rows = %d, want 4 and 4", g.MemberCount, active)
	}
}

func TestApproveApplication_AlreadyMember(t *testing.T) {
	h := newHarness(t)
	p, gid := h.approvedProject(t, "Widget", "a@x.com")
	owner := h.fx.UserFor(h.ctx, "a@x.com")
	app := h.fx.CreateApplication(h.ctx, p.ID, owner)

	out, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin)
	if err != nil {
		t.Fatalf("ApproveApplication failed: %v", err)
	}
	if len(out.Warnings) == 0 {
		t.Error("expected an already-a-member warning")
	}
	g, _ := groupstore.New(h.es).GetByID(h.ctx, gid)
	if g.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1", g.MemberCount)
	}
	if n := h.countNotifications(models.NotifGroupMemberJoined); n != 0 {
		t.Errorf("group_member_joined = %d, want 0", n)
	}
}

func TestApproveApplication_ProjectWithoutGroup(t *testing.T) {
	h := newHarness(t)
	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")
	app := h.fx.CreateApplication(h.ctx, p.ID, h.fx.CreateUser(h.ctx, "b@x.com", ""))

	_, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("error = %v, want conflict", err)
	}
	got, _ := applicationstore.New(h.es).GetByID(h.ctx, app.ID)
	if got.Status != models.ApplicationPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
}

func TestApproveApplication_RevertsWhenMembershipFails(t *testing.T) {
	h := newHarness(t)
	p, gid := h.approvedProject(t, "Widget", "a@x.com")
	applicant := h.fx.CreateUser(h.ctx, "b@x.com", "Bea")
	app := h.fx.CreateApplication(h.ctx, p.ID, applicant)

	h.es.SetFault(func(op entitystore.Op, coll string, id primitive.ObjectID) error {
		if op == entitystore.OpApply && coll == entitystore.Groups {
			return entitystore.ErrUnavailable
		}
		return nil
	})
	_, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin)
	h.es.SetFault(nil)

	if !errors.Is(err, apperr.ErrDownstreamUnavailable) {
		t.Fatalf("error = %v, want downstream unavailable", err)
	}
	got, _ := applicationstore.New(h.es).GetByID(h.ctx, app.ID)
	if got.Status != models.ApplicationPending {
		t.Errorf("Status = %q, want reverted to pending", got.Status)
	}
	if n, _ := membershipstore.New(h.es).CountActive(h.ctx, gid); n != 1 {
		t.Errorf("active members = %d, want only the owner", n)
	}
	if n := h.countNotifications(models.NotifApplicationApproved); n != 0 {
		t.Errorf("application_approved = %d, want 0", n)
	}

	if _, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin); err != nil {
		t.Errorf("retry failed: %v", err)
	}
}

func TestRejectApplication(t *testing.T) {
	h := newHarness(t)
	p, _ := h.approvedProject(t, "Widget", "a@x.com")
	app := h.fx.CreateApplication(h.ctx, p.ID, h.fx.CreateUser(h.ctx, "b@x.com", "Bea"))

	if _, err := h.eng.RejectApplication(h.ctx, app.ID, h.admin, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank reason error = %v, want validation", err)
	}
	if _, err := h.eng.RejectApplication(h.ctx, app.ID, h.admin, "Team is full"); err != nil {
		t.Fatalf("RejectApplication failed: %v", err)
	}
	got, _ := applicationstore.New(h.es).GetByID(h.ctx, app.ID)
	if got.Status != models.ApplicationRejected {
		t.Errorf("Status = %q, want rejected", got.Status)
	}
	if n := h.countNotifications(models.NotifApplicationRejected); n != 1 {
		t.Errorf("application_rejected = %d, want 1", n)
	}
	if _, err := h.eng.ApproveApplication(h.ctx, app.ID, h.admin); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("approve after reject error = %v, want conflict", err)
	}
}
