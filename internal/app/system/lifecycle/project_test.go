package lifecycle_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	notificationstore "github.com/dalemusser/collabhub/internal/app/store/notifications"
	projectstore "github.com/dalemusser/collabhub/internal/app/store/projects"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestApproveProject_CreatesGroupWithOwnerAsAdmin(t *testing.T) {
	h := newHarness(t)
	msgs, cancel := h.broker.Subscribe(8)
	defer cancel()

	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")
	owner := h.fx.UserFor(h.ctx, "a@x.com")

	out, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
	if err != nil {
		t.Fatalf("ApproveProject failed: %v", err)
	}
	if !out.Succeeded || out.GroupID == "" {
		t.Fatalf("outcome = %+v", out)
	}

	got, err := projectstore.New(h.es).GetByID(h.ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.ProjectApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
	if got.GroupID == nil || got.GroupID.Hex() != out.GroupID {
		t.Fatalf("GroupID = %v, want %s", got.GroupID, out.GroupID)
	}

	g, err := groupstore.New(h.es).GetByID(h.ctx, *got.GroupID)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if g.Name != "Widget" {
		t.Errorf("group Name = %q, want Widget", g.Name)
	}
	if g.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1", g.MemberCount)
	}

	admins, err := membershipstore.New(h.es).ListAdmins(h.ctx, g.ID)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 1 || admins[0].UserEmail != "a@x.com" || admins[0].UserID != owner.ID {
		t.Fatalf("admins = %+v, want one admin a@x.com", admins)
	}

	notes, err := notificationstore.New(h.es).ListByType(h.ctx, models.NotifProjectApproved)
	if err != nil {
		t.Fatalf("ListByType: %v", err)
	}
	if len(notes) != 1 || notes[0].UserID == nil || *notes[0].UserID != owner.ID {
		t.Fatalf("notifications = %+v, want one for the owner", notes)
	}
	if !strings.Contains(notes[0].Message, "Widget") {
		t.Errorf("Message = %q, should name the project", notes[0].Message)
	}

	sent := h.mail.Sent()
	if len(sent) != 1 || sent[0].Key != mailer.SendProjectApproved {
		t.Fatalf("emails = %+v, want one send-project-approved", sent)
	}
	if sent[0].Payload.ProjectData.ContactEmail != "a@x.com" || sent[0].Payload.ProjectData.GroupID != out.GroupID {
		t.Errorf("payload = %+v", sent[0].Payload.ProjectData)
	}

	select {
	case m := <-msgs:
		if m.Kind != "project.approve" || m.EntityID != p.ID.Hex() {
			t.Errorf("published %+v", m)
		}
	default:
		t.Error("nothing published to the broker")
	}
}

func TestApproveProject_SanitizesGroupFields(t *testing.T) {
	h := newHarness(t)
	p := h.fx.CreateProject(h.ctx, "<b>Widget</b> <script>alert(1)</script>", "a@x.com")

	out, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
	if err != nil {
		t.Fatalf("ApproveProject failed: %v", err)
	}
	gid, _ := primitive.ObjectIDFromHex(out.GroupID)
	g, err := groupstore.New(h.es).GetByID(h.ctx, gid)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if strings.ContainsAny(g.Name, "<>") || !strings.HasPrefix(g.Name, "Widget") {
		t.Errorf("group Name = %q, want markup stripped", g.Name)
	}
}

func TestApproveProject_TerminalIsConflict(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, p models.Project)
	}{
		{"already approved", func(h *harness, p models.Project) {
			if _, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin); err != nil {
				t.Fatalf("first approve: %v", err)
			}
		}},
		{"already rejected", func(h *harness, p models.Project) {
			if _, err := h.eng.RejectProject(h.ctx, p.ID, h.admin, "no"); err != nil {
				t.Fatalf("reject: %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")
			tt.setup(h, p)

			notesBefore := h.fx.Count(h.ctx, entitystore.Notifications, entitystore.Filter{})
			mailBefore := len(h.mail.Sent())
			groupsBefore := h.fx.Count(h.ctx, entitystore.Groups, entitystore.Filter{})

			_, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
			if !errors.Is(err, apperr.ErrConflict) {
				t.Fatalf("error = %v, want conflict", err)
			}
			if n := h.fx.Count(h.ctx, entitystore.Notifications, entitystore.Filter{}); n != notesBefore {
				t.Errorf("notifications %d -> %d", notesBefore, n)
			}
			if n := len(h.mail.Sent()); n != mailBefore {
				t.Errorf("emails %d -> %d", mailBefore, n)
			}
			if n := h.fx.Count(h.ctx, entitystore.Groups, entitystore.Filter{}); n != groupsBefore {
				t.Errorf("groups %d -> %d", groupsBefore, n)
			}
		})
	}
}

func TestApproveProject_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.ApproveProject(h.ctx, primitive.NewObjectID(), h.admin)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestApproveProject_LegacyStatuses(t *testing.T) {
	for _, raw := range []string{"submitted", "pending", "", "awaiting_review"} {
		t.Run("status="+raw, func(t *testing.T) {
			h := newHarness(t)
			p := h.fx.CreateProjectWithStatus(h.ctx, "Widget", "a@x.com", raw)
			out, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
			if err != nil {
				t.Fatalf("ApproveProject failed: %v", err)
			}
			if !out.Succeeded {
				t.Error("approval should succeed from a non-terminal legacy status")
			}
		})
	}
}

func TestApproveProject_CompensatesWhenStatusWriteFails(t *testing.T) {
	h := newHarness(t)
	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")

	h.es.SetFault(func(op entitystore.Op, coll string, id primitive.ObjectID) error {
		if op == entitystore.OpApply && coll == entitystore.Projects {
			return entitystore.ErrUnavailable
		}
		return nil
	})
	_, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
	h.es.SetFault(nil)

	if !errors.Is(err, apperr.ErrDownstreamUnavailable) {
		t.Fatalf("error = %v, want downstream unavailable", err)
	}
	if n := h.fx.Count(h.ctx, entitystore.Groups, entitystore.Filter{}); n != 0 {
		t.Errorf("groups left behind = %d", n)
	}
	if n := h.fx.Count(h.ctx, entitystore.GroupMembers, entitystore.Filter{}); n != 0 {
		t.Errorf("members left behind = %d", n)
	}
	if n := h.fx.Count(h.ctx, entitystore.Notifications, entitystore.Filter{}); n != 0 {
		t.Errorf("notifications written = %d", n)
	}
	if len(h.mail.Sent()) != 0 {
		t.Error("email sent for a failed approval")
	}

	got, _ := projectstore.New(h.es).GetByID(h.ctx, p.ID)
	if got.Status != models.ProjectPending || got.GroupID != nil {
		t.Errorf("project = %+v, want untouched", got)
	}

	// The project can still be approved once the store recovers.
	if _, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestApproveProject_CompensatesWhenCounterFails(t *testing.T) {
	h := newHarness(t)
	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")

	h.es.SetFault(func(op entitystore.Op, coll string, id primitive.ObjectID) error {
		if op == entitystore.OpApply && coll == entitystore.Groups {
			return entitystore.ErrUnavailable
		}
		return nil
	})
	_, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
	h.es.SetFault(nil)

	if err == nil {
		t.Fatal("expected an error")
	}
	if n := h.fx.Count(h.ctx, entitystore.Groups, entitystore.Filter{}); n != 0 {
		t.Errorf("groups left behind = %d", n)
	}
	if n := h.fx.Count(h.ctx, entitystore.GroupMembers, entitystore.Filter{}); n != 0 {
		t.Errorf("members left behind = %d", n)
	}
}

func TestApproveProject_EmailFailureIsOnlyAWarning(t *testing.T) {
	h := newHarness(t)
	h.mail.Err = apperr.ErrDownstreamUnavailable
	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")

	out, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
	if err != nil {
		t.Fatalf("ApproveProject failed: %v", err)
	}
	if !out.Succeeded || out.EmailsFailed != 1 || out.EmailsSent != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if len(out.Warnings) == 0 {
		t.Error("expected a warning for the failed email")
	}
	if out.NotificationsWritten != 1 {
		t.Errorf("NotificationsWritten = %d, want 1", out.NotificationsWritten)
	}
}

func TestRejectProject_RequiresReason(t *testing.T) {
	for _, r := range []string{"", "   ", "<b></b>"} {
		t.Run("reason="+r, func(t *testing.T) {
			h := newHarness(t)
			p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")

			_, err := h.eng.RejectProject(h.ctx, p.ID, h.admin, r)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("error = %v, want validation", err)
			}
			got, _ := projectstore.New(h.es).GetByID(h.ctx, p.ID)
			if got.Status != models.ProjectPending {
				t.Errorf("Status = %q, want unchanged", got.Status)
			}
			if n := h.countNotifications(models.NotifProjectRejected); n != 0 {
				t.Errorf("notifications = %d, want 0", n)
			}
		})
	}
}

func TestRejectProject(t *testing.T) {
	h := newHarness(t)
	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")

	out, err := h.eng.RejectProject(h.ctx, p.ID, h.admin, "  Out of scope  ")
	if err != nil {
		t.Fatalf("RejectProject failed: %v", err)
	}
	if out.NotificationsWritten != 1 || out.EmailsSent != 1 {
		t.Errorf("outcome = %+v", out)
	}

	got, _ := projectstore.New(h.es).GetByID(h.ctx, p.ID)
	if got.Status != models.ProjectRejected || got.RejectionReason != "Out of scope" {
		t.Errorf("project = %+v", got)
	}
	if got.GroupID != nil {
		t.Error("rejected project must not have a group")
	}
	sent := h.mail.Sent()
	if len(sent) != 1 || sent[0].Key != mailer.SendProjectRejected || sent[0].Payload.ProjectData.Reason != "Out of scope" {
		t.Errorf("emails = %+v", sent)
	}

	if _, err := h.eng.RejectProject(h.ctx, p.ID, h.admin, "again"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second reject error = %v, want conflict", err)
	}
	if n := h.countNotifications(models.NotifProjectRejected); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestApproveProject_ConcurrentOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	p := h.fx.CreateProject(h.ctx, "Widget", "a@x.com")

	const n = 4
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
			errs <- err
		}()
	}
	wins := 0
	for i := 0; i < n; i++ {
		err := <-errs
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, apperr.ErrConflict):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	if n := h.fx.Count(h.ctx, entitystore.Groups, entitystore.Filter{}); n != 1 {
		t.Errorf("groups = %d, want 1", n)
	}
	if n := h.fx.Count(h.ctx, entitystore.GroupMembers, entitystore.Filter{"role": models.RoleAdmin}); n != 1 {
		t.Errorf("admin members = %d, want 1", n)
	}
	if n := h.countNotifications(models.NotifProjectApproved); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}
