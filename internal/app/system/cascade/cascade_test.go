package cascade_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"github.com/dalemusser/collabhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newEngine(t *testing.T) (*cascade.Engine, *entitystore.Memory, *testutil.Fixtures) {
	t.Helper()
	es := testutil.NewStore(t)
	return cascade.New(es, nil, broker.New(), zap.NewNop(), 4), es, testutil.NewFixtures(t, es)
}

func confirm(root cascade.Root) cascade.Confirmation {
	return cascade.Confirmation{Confirm: true, Phrase: cascade.Phrase(root)}
}

func TestConfirmation_Check(t *testing.T) {
	tests := []struct {
		name    string
		root    cascade.Root
		conf    cascade.Confirmation
		wantErr bool
	}{
		{"group ok", cascade.RootGroup, cascade.Confirmation{Confirm: true, Phrase: "DELETE GROUP"}, false},
		{"project ok", cascade.RootProject, cascade.Confirmation{Confirm: true, Phrase: "DELETE PROJECT"}, false},
		{"event ok", cascade.RootEvent, cascade.Confirmation{Confirm: true, Phrase: "DELETE EVENT"}, false},
		{"company ok", cascade.RootCompany, cascade.Confirmation{Confirm: true, Phrase: "DELETE COMPANY"}, false},
		{"post ok", cascade.RootPost, cascade.Confirmation{Confirm: true, Phrase: "DELETE"}, false},
		{"company short phrase", cascade.RootCompany, cascade.Confirmation{Confirm: true, Phrase: "DELETE"}, true},
		{"lowercase", cascade.RootGroup, cascade.Confirmation{Confirm: true, Phrase: "delete group"}, true},
		{"trailing space", cascade.RootGroup, cascade.Confirmation{Confirm: true, Phrase: "DELETE GROUP "}, true},
		{"not confirmed", cascade.RootPost, cascade.Confirmation{Confirm: false, Phrase: "DELETE"}, true},
		{"unknown root", cascade.Root("user"), cascade.Confirmation{Confirm: true, Phrase: "DELETE"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Check(tt.root)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("error should be a validation error: %v", err)
			}
		})
	}
}

func TestDeleteGroup_CountsAndNoOrphans(t *testing.T) {
	eng, es, fx := newEngine(t)
	ctx := testutil.TestContext(t)
	actor := primitive.NewObjectID()

	g := fx.CreateGroup(ctx, "Widget", nil)
	var members []models.User
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		u := fx.CreateUser(ctx, email, "")
		members = append(members, u)
		fx.AddGroupMember(ctx, g.ID, u, models.RoleMember)
	}
	for i := 0; i < 2; i++ {
		p := fx.CreateGroupPost(ctx, g.ID, members[0], "hello")
		fx.AddComment(ctx, p.ID, members[1], "reply")
	}
	fx.CreateCompletionRequest(ctx, g.ID, members[0].ID, "Widget")
	fx.Insert(ctx, entitystore.MemberBadges, models.MemberBadge{ID: primitive.NewObjectID(), GroupID: g.ID, UserID: members[0].ID, Badge: "finisher"})
	fx.Insert(ctx, entitystore.Certificates, models.Certificate{ID: primitive.NewObjectID(), GroupID: g.ID, UserID: members[0].ID})
	gid := g.ID
	fx.Insert(ctx, entitystore.Notifications, models.Notification{ID: primitive.NewObjectID(), Type: models.NotifGroupPost, RelatedIDs: models.RelatedIDs{GroupID: &gid}})

	// An unrelated group must survive.
	other := fx.CreateGroup(ctx, "Other", nil)
	fx.AddGroupMember(ctx, other.ID, members[0], models.RoleAdmin)

	r, err := eng.DeleteGroup(ctx, g.ID, actor, confirm(cascade.RootGroup))
	if err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	want := map[string]int{
		entitystore.GroupMembers:       3,
		entitystore.Posts:              2,
		entitystore.Comments:           2,
		entitystore.CompletionRequests: 1,
		entitystore.MemberBadges:       1,
		entitystore.Certificates:       1,
		entitystore.Notifications:      1,
		entitystore.Groups:             1,
	}
	for coll, n := range want {
		if r.Counts[coll] != n {
			t.Errorf("Counts[%s] = %d, want %d", coll, r.Counts[coll], n)
		}
	}
	if !r.RootDeleted || r.Partial() {
		t.Errorf("RootDeleted = %v, Partial = %v", r.RootDeleted, r.Partial())
	}
	if r.ID == "" || r.FinishedAt.Before(r.StartedAt) {
		t.Errorf("receipt not stamped: %+v", r)
	}

	for _, coll := range []string{entitystore.GroupMembers, entitystore.Posts, entitystore.CompletionRequests, entitystore.MemberBadges, entitystore.Certificates} {
		if n := fx.Count(ctx, coll, entitystore.Filter{"group_id": g.ID}); n != 0 {
			t.Errorf("%d orphaned %s rows", n, coll)
		}
	}
	if n := fx.Count(ctx, entitystore.Comments, entitystore.Filter{}); n != 0 {
		t.Errorf("%d orphaned comments", n)
	}
	if _, err := groupstore.New(es).GetByID(ctx, other.ID); err != nil {
		t.Errorf("unrelated group was touched: %v", err)
	}
	if n := fx.Count(ctx, entitystore.GroupMembers, entitystore.Filter{"group_id": other.ID}); n != 1 {
		t.Errorf("unrelated group members = %d, want 1", n)
	}
}

func TestDeleteGroup_WrongPhrase_NoChange(t *testing.T) {
	eng, es, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	g := fx.CreateGroup(ctx, "Widget", nil)
	_, err := eng.DeleteGroup(ctx, g.ID, primitive.NewObjectID(), cascade.Confirmation{Confirm: true, Phrase: "DELETE"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if _, err := groupstore.New(es).GetByID(ctx, g.ID); err != nil {
		t.Errorf("group should still exist: %v", err)
	}
}

func TestDeleteGroup_NotFound(t *testing.T) {
	eng, _, _ := newEngine(t)
	_, err := eng.DeleteGroup(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), confirm(cascade.RootGroup))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestDeleteGroup_PartialFailure(t *testing.T) {
	eng, es, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	g := fx.CreateGroup(ctx, "Widget", nil)
	var stuck primitive.ObjectID
	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		m := fx.AddGroupMember(ctx, g.ID, fx.CreateUser(ctx, email, ""), models.RoleMember)
		if i == 1 {
			stuck = m.ID
		}
	}

	es.SetFault(func(op entitystore.Op, coll string, id primitive.ObjectID) error {
		if op == entitystore.OpDelete && id == stuck {
			return entitystore.ErrUnavailable
		}
		return nil
	})

	r, err := eng.DeleteGroup(ctx, g.ID, primitive.NewObjectID(), confirm(cascade.RootGroup))
	if !errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("error = %v, want partial cascade", err)
	}
	var pf *cascade.PartialFailure
	if !errors.As(err, &pf) || pf.Receipt != r {
		t.Fatal("error should carry the receipt")
	}
	if !r.Partial() || len(r.Errors) != 1 {
		t.Errorf("Partial = %v, Errors = %v", r.Partial(), r.Errors)
	}
	if r.Counts[entitystore.GroupMembers] != 2 {
		t.Errorf("deleted members = %d, want 2", r.Counts[entitystore.GroupMembers])
	}
	if !r.RootDeleted {
		t.Error("root should be deleted even when children fail")
	}
	if apperr.HTTPStatus(err) != 207 {
		t.Errorf("HTTPStatus = %d, want 207", apperr.HTTPStatus(err))
	}

	// A copy and a receipt decoded from the wire report the same outcome.
	cp := *r
	if !cp.Partial() || cp.Total() != r.Total() {
		t.Errorf("copy: Partial = %v, Total = %d; want true, %d", cp.Partial(), cp.Total(), r.Total())
	}
	raw, jerr := json.Marshal(r)
	if jerr != nil {
		t.Fatalf("Marshal: %v", jerr)
	}
	var decoded cascade.Receipt
	if jerr := json.Unmarshal(raw, &decoded); jerr != nil {
		t.Fatalf("Unmarshal: %v", jerr)
	}
	if !decoded.Partial() || len(multierr.Errors(decoded.Err())) != 1 {
		t.Errorf("decoded receipt: Partial = %v, Err = %v", decoded.Partial(), decoded.Err())
	}
	if decoded.Total() != r.Total() {
		t.Errorf("decoded Total = %d, want %d", decoded.Total(), r.Total())
	}
}

func TestDeleteCompany_ShortPhrase(t *testing.T) {
	eng, _, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	c := fx.CreateCompany(ctx, "Acme", primitive.NewObjectID())
	_, err := eng.DeleteCompany(ctx, c.ID, primitive.NewObjectID(), cascade.Confirmation{Confirm: true, Phrase: "DELETE"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if n := fx.Count(ctx, entitystore.Companies, entitystore.Filter{"_id": c.ID}); n != 1 {
		t.Error("company should still exist")
	}
}

func TestDeleteCompany_KeepsPosts(t *testing.T) {
	eng, _, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	u := fx.CreateUser(ctx, "a@x.com", "Ann")
	c := fx.CreateCompany(ctx, "Acme", u.ID)
	fx.AddCompanyMember(ctx, c.ID, u, models.RoleAdmin)
	fx.AddCompanyMember(ctx, c.ID, fx.CreateUser(ctx, "b@x.com", ""), models.RoleMember)
	fx.CreateCompanyPost(ctx, c.ID, u, "hello")

	r, err := eng.DeleteCompany(ctx, c.ID, primitive.NewObjectID(), confirm(cascade.RootCompany))
	if err != nil {
		t.Fatalf("DeleteCompany failed: %v", err)
	}
	if r.Counts[entitystore.CompanyMembers] != 2 {
		t.Errorf("company_members deleted = %d, want 2", r.Counts[entitystore.CompanyMembers])
	}
	if n := fx.Count(ctx, entitystore.Posts, entitystore.Filter{"company_id": c.ID}); n != 1 {
		t.Errorf("company posts remaining = %d, want 1", n)
	}
}

func TestDeletePost_DecrementsParent(t *testing.T) {
	eng, es, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	u := fx.CreateUser(ctx, "a@x.com", "Ann")
	g := fx.CreateGroup(ctx, "Widget", nil)
	p := fx.CreateGroupPost(ctx, g.ID, u, "one")
	fx.CreateGroupPost(ctx, g.ID, u, "two")
	fx.AddComment(ctx, p.ID, u, "c1")
	fx.AddComment(ctx, p.ID, u, "c2")

	r, err := eng.DeletePost(ctx, p.ID, u.ID, confirm(cascade.RootPost))
	if err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if r.Counts[entitystore.Comments] != 2 || r.Counts[entitystore.Posts] != 1 {
		t.Errorf("counts = %v", r.Counts)
	}
	got, err := groupstore.New(es).GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PostCount != 1 {
		t.Errorf("PostCount = %d, want 1", got.PostCount)
	}
}

func TestDeleteProject_WithGroup(t *testing.T) {
	eng, _, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	p := fx.CreateProject(ctx, "Widget", "a@x.com")
	pid := p.ID
	g := fx.CreateGroup(ctx, "Widget", &pid)
	fx.AddGroupMember(ctx, g.ID, fx.UserFor(ctx, "a@x.com"), models.RoleAdmin)
	fx.CreateApplication(ctx, p.ID, fx.CreateUser(ctx, "b@x.com", ""))

	r, err := eng.DeleteProject(ctx, p.ID, primitive.NewObjectID(), confirm(cascade.RootProject))
	if err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	for coll, n := range map[string]int{
		entitystore.Groups:              1,
		entitystore.GroupMembers:        1,
		entitystore.ProjectApplications: 1,
		entitystore.Projects:            1,
	} {
		if r.Counts[coll] != n {
			t.Errorf("Counts[%s] = %d, want %d", coll, r.Counts[coll], n)
		}
	}
	if n := fx.Count(ctx, entitystore.Groups, entitystore.Filter{}); n != 0 {
		t.Errorf("groups remaining = %d", n)
	}
}

func TestDeleteEvent(t *testing.T) {
	eng, _, fx := newEngine(t)
	ctx := testutil.TestContext(t)

	e := fx.CreateEvent(ctx, "Meetup", "org@x.com")
	for i := 0; i < 3; i++ {
		fx.Insert(ctx, entitystore.EventRegistrations, models.EventRegistration{ID: primitive.NewObjectID(), EventID: e.ID, UserID: primitive.NewObjectID()})
	}

	r, err := eng.DeleteEvent(ctx, e.ID, primitive.NewObjectID(), confirm(cascade.RootEvent))
	if err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if r.Counts[entitystore.EventRegistrations] != 3 || !r.RootDeleted {
		t.Errorf("receipt = %+v", r)
	}
}

func TestDelete_IgnoresCallerCancellation(t *testing.T) {
	eng, _, fx := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	g := fx.CreateGroup(ctx, "Widget", nil)
	fx.AddGroupMember(ctx, g.ID, fx.CreateUser(ctx, "a@x.com", ""), models.RoleMember)
	cancel()

	r, err := eng.DeleteGroup(ctx, g.ID, primitive.NewObjectID(), confirm(cascade.RootGroup))
	if err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if !r.RootDeleted {
		t.Error("cascade should finish after the caller cancels")
	}
}
