package fanout_test

import (
	"testing"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	notificationstore "github.com/dalemusser/collabhub/internal/app/store/notifications"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"github.com/dalemusser/collabhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		user     *models.User
		hint     string
		email    string
		fallback string
		want     string
	}{
		{"display name wins", &models.User{DisplayName: "Ann", FirstName: "A", LastName: "B"}, "hint", "x@y.com", fanout.FallbackTeamMember, "Ann"},
		{"first and last", &models.User{FirstName: "Ann", LastName: "Lee"}, "hint", "x@y.com", fanout.FallbackTeamMember, "Ann Lee"},
		{"first only", &models.User{FirstName: " Ann "}, "", "", fanout.FallbackTeamMember, "Ann"},
		{"hint", nil, " Bea ", "x@y.com", fanout.FallbackTeamMember, "Bea"},
		{"email local part", nil, "", "jane.doe@x.com", fanout.FallbackTeamMember, "Jane Doe"},
		{"user email", &models.User{Email: "sam@x.com"}, "", "", fanout.FallbackTeamMember, "Sam"},
		{"team fallback", nil, "", "", fanout.FallbackTeamMember, "Team Member"},
		{"professional fallback", nil, "", "", fanout.FallbackProfessionalUser, "Professional User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fanout.DisplayName(tt.user, tt.hint, tt.email, tt.fallback); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotify_GroupMembersExcludesActorAndDedupes(t *testing.T) {
	es := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, es)
	ctx := testutil.TestContext(t)
	f := fanout.New(es, zap.NewNop())

	g := fx.CreateGroup(ctx, "Crew", nil)
	ann := fx.CreateUser(ctx, "ann@x.com", "Ann")
	bea := fx.CreateUser(ctx, "bea@x.com", "")
	cy := fx.CreateUser(ctx, "cy@x.com", "Cy")
	for _, u := range []models.User{ann, bea, cy} {
		fx.AddGroupMember(ctx, g.ID, u, models.RoleMember)
	}

	ev := fanout.Event{
		Type:  models.NotifGroupPost,
		Key:   "group_post:" + primitive.NewObjectID().Hex(),
		Title: "New post",
		Message: func(name string) string {
			return "Hi " + name
		},
	}
	res := f.Notify(ctx, ev, fanout.GroupMembers(g.ID), ann.ID)
	if res.Recipients != 2 || res.Written != 2 || res.Failed != 0 {
		t.Fatalf("first Notify = %+v, want 2 written", res)
	}

	retry := f.Notify(ctx, ev, fanout.GroupMembers(g.ID), ann.ID)
	if retry.Written != 0 || retry.Duplicate != 2 || retry.Err != nil {
		t.Fatalf("retry = %+v, want 2 duplicates", retry)
	}

	ns := notificationstore.New(es)
	if got, _ := ns.ListForUser(ctx, ann.ID); len(got) != 0 {
		t.Errorf("actor received %d notifications", len(got))
	}
	got, err := ns.ListForUser(ctx, bea.ID)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(got) != 1 || got[0].Message != "Hi Bea" {
		t.Errorf("bea's notifications = %+v, want one addressed to Bea", got)
	}
}

func TestNotify_SubjectNamesTheActor(t *testing.T) {
	es := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, es)
	ctx := testutil.TestContext(t)
	f := fanout.New(es, zap.NewNop())

	c := fx.CreateCompany(ctx, "Acme", primitive.NewObjectID())
	joiner := fx.CreateUser(ctx, "j@x.com", "")
	other := fx.CreateUser(ctx, "o@x.com", "Olive")
	fx.AddCompanyMember(ctx, c.ID, other, models.RoleAdmin)
	fx.AddCompanyMember(ctx, c.ID, joiner, models.RoleMember)

	res := f.Notify(ctx, fanout.Event{
		Type:    models.NotifCompanyMemberJoined,
		Key:     "company_member_joined:test",
		Subject: &fanout.Person{UserID: joiner.ID},
		Message: func(name string) string { return name + " joined" },
	}, fanout.CompanyMembers(c.ID), joiner.ID)
	if res.Written != 1 {
		t.Fatalf("Notify = %+v, want 1 written", res)
	}
	got, _ := notificationstore.New(es).ListForUser(ctx, other.ID)
	if len(got) != 1 || got[0].Message != "J joined" {
		t.Errorf("notifications = %+v", got)
	}
}

func TestNotify_EmailAudience(t *testing.T) {
	es := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, es)
	ctx := testutil.TestContext(t)
	f := fanout.New(es, zap.NewNop())

	known := fx.CreateUser(ctx, "known@x.com", "Kim")

	tests := []struct {
		name      string
		email     string
		wantUser  bool
		wantWrite int
	}{
		{"account holder", " Known@X.com ", true, 1},
		{"address only", "guest@x.com", false, 1},
		{"blank", "  ", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Notify(ctx, fanout.Event{
				Type:    models.NotifEventApproved,
				Key:     "event_approved:" + tt.name,
				Message: func(name string) string { return "Hi " + name },
			}, fanout.Email(tt.email, "Organizer"), primitive.NilObjectID)
			if res.Written != tt.wantWrite {
				t.Fatalf("Written = %d, want %d", res.Written, tt.wantWrite)
			}
		})
	}

	if got, _ := notificationstore.New(es).ListForUser(ctx, known.ID); len(got) != 1 || got[0].Message != "Hi Kim" {
		t.Errorf("known user's notifications = %+v", got)
	}
	guest, err := notificationstore.New(es).ListForEmail(ctx, "guest@x.com")
	if err != nil {
		t.Fatalf("ListForEmail: %v", err)
	}
	if len(guest) != 1 || guest[0].UserID != nil || guest[0].Message != "Hi Organizer" {
		t.Errorf("guest notifications = %+v", guest)
	}
}

func TestNotify_ReportsWriteFailures(t *testing.T) {
	es := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, es)
	ctx := testutil.TestContext(t)
	f := fanout.New(es, zap.NewNop())

	g := fx.CreateGroup(ctx, "Crew", nil)
	fx.AddGroupMember(ctx, g.ID, fx.CreateUser(ctx, "a@x.com", "A"), models.RoleMember)
	fx.AddGroupMember(ctx, g.ID, fx.CreateUser(ctx, "b@x.com", "B"), models.RoleMember)

	es.SetFault(func(op entitystore.Op, coll string, id primitive.ObjectID) error {
		if op == entitystore.OpInsert && coll == entitystore.Notifications {
			return entitystore.ErrUnavailable
		}
		return nil
	})
	res := f.Notify(ctx, fanout.Event{Type: models.NotifGroupPost, Key: "group_post:x"}, fanout.GroupMembers(g.ID), primitive.NilObjectID)
	es.SetFault(nil)

	if res.Failed != 2 || res.Written != 0 || res.Err == nil {
		t.Errorf("Notify = %+v, want 2 failures with an error", res)
	}
}
