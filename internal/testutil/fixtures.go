package testutil

import (
	"context"
	"testing"
	"time"

	adminstore "github.com/dalemusser/collabhub/internal/app/store/admins"
	applicationstore "github.com/dalemusser/collabhub/internal/app/store/applications"
	companystore "github.com/dalemusser/collabhub/internal/app/store/companies"
	completionstore "github.com/dalemusser/collabhub/internal/app/store/completions"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	eventstore "github.com/dalemusser/collabhub/internal/app/store/events"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	poststore "github.com/dalemusser/collabhub/internal/app/store/posts"
	projectstore "github.com/dalemusser/collabhub/internal/app/store/projects"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/indexes"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// NewStore returns an in-memory store with every application index in place,
// so uniqueness rules (dedupe keys, one group per project) hold in tests.
func NewStore(t *testing.T) *entitystore.Memory {
	t.Helper()
	es := entitystore.NewMemory()
	if err := indexes.EnsureAll(context.Background(), es, zap.NewNop()); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}
	return es
}

// TestContext returns a context that is cancelled when the test ends.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	es entitystore.Store
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance over the given store.
func NewFixtures(t *testing.T, es entitystore.Store) *Fixtures {
	t.Helper()
	return &Fixtures{es: es, t: t}
}

// Store returns the underlying store for direct access in tests.
func (f *Fixtures) Store() entitystore.Store {
	return f.es
}

// CreateUser creates a user with the given email and display name.
func (f *Fixtures) CreateUser(ctx context.Context, email, displayName string) models.User {
	f.t.Helper()
	u, err := userstore.New(f.es).Create(ctx, models.User{Email: email, DisplayName: displayName})
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// UserFor returns the user with email, creating one if needed.
func (f *Fixtures) UserFor(ctx context.Context, email string) models.User {
	f.t.Helper()
	if u, err := userstore.New(f.es).GetByEmail(ctx, email); err == nil {
		return u
	}
	return f.CreateUser(ctx, email, "")
}

// CreateAdmin creates a user with an active admin record. It returns the
// admin, its user, and the API key.
func (f *Fixtures) CreateAdmin(ctx context.Context, email string) (models.Admin, models.User, string) {
	f.t.Helper()
	u := f.CreateUser(ctx, email, "Admin")
	a, key, err := adminstore.New(f.es).Create(ctx, u.ID, email)
	if err != nil {
		f.t.Fatalf("failed to create test admin: %v", err)
	}
	return a, u, key
}

// CreateProject creates a pending project owned by ownerEmail, creating the
// owner's user record.
func (f *Fixtures) CreateProject(ctx context.Context, title, ownerEmail string) models.Project {
	f.t.Helper()
	owner := f.UserFor(ctx, ownerEmail)
	p, err := projectstore.New(f.es).Create(ctx, models.Project{
		Title:        title,
		Description:  "A test project",
		ContactEmail: ownerEmail,
		ContactName:  normalize.LocalPartTitle(ownerEmail),
		OwnerUserID:  owner.ID,
		Status:       models.ProjectPending,
	})
	if err != nil {
		f.t.Fatalf("failed to create test project: %v", err)
	}
	return p
}

// CreateProjectWithStatus inserts a project with a raw stored status, for
// legacy-spelling tests.
func (f *Fixtures) CreateProjectWithStatus(ctx context.Context, title, ownerEmail, status string) models.Project {
	f.t.Helper()
	p := f.CreateProject(ctx, title, ownerEmail)
	if err := entitystore.Set(ctx, f.es, entitystore.Projects, p.ID, map[string]any{"status": status}); err != nil {
		f.t.Fatalf("failed to set project status: %v", err)
	}
	p.Status = models.ProjectStatus(status)
	return p
}

// CreateEvent creates a pending event.
func (f *Fixtures) CreateEvent(ctx context.Context, title, organizerEmail string, selected ...primitive.ObjectID) models.Event {
	f.t.Helper()
	e, err := eventstore.New(f.es).Create(ctx, models.Event{
		Title:              title,
		OrganizerEmail:     organizerEmail,
		OrganizerName:      normalize.LocalPartTitle(organizerEmail),
		SelectedProjectIDs: selected,
		Status:             models.EventPending,
	})
	if err != nil {
		f.t.Fatalf("failed to create test event: %v", err)
	}
	return e
}

// CreateGroup creates an active group, optionally tied to a project.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, projectID *primitive.ObjectID) models.Group {
	f.t.Helper()
	g, err := groupstore.New(f.es).Create(ctx, models.Group{Name: name, ProjectID: projectID})
	if err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return g
}

// AddGroupMember adds u to a group and bumps member_count.
func (f *Fixtures) AddGroupMember(ctx context.Context, groupID primitive.ObjectID, u models.User, role models.MemberRole) models.GroupMember {
	f.t.Helper()
	m, err := membershipstore.New(f.es).Add(ctx, models.GroupMember{
		GroupID:     groupID,
		UserID:      u.ID,
		UserEmail:   u.Email,
		DisplayName: u.DisplayName,
		Role:        role,
	})
	if err != nil {
		f.t.Fatalf("failed to add test group member: %v", err)
	}
	if err := groupstore.New(f.es).AdjustMemberCount(ctx, groupID, 1); err != nil {
		f.t.Fatalf("failed to bump member_count: %v", err)
	}
	return m
}

// CreateCompany creates an active company.
func (f *Fixtures) CreateCompany(ctx context.Context, name string, createdBy primitive.ObjectID) models.Company {
	f.t.Helper()
	c, err := companystore.New(f.es).Create(ctx, models.Company{Name: name, CreatedBy: createdBy})
	if err != nil {
		f.t.Fatalf("failed to create test company: %v", err)
	}
	return c
}

// AddCompanyMember adds u to a company and bumps member_count.
func (f *Fixtures) AddCompanyMember(ctx context.Context, companyID primitive.ObjectID, u models.User, role models.MemberRole) models.CompanyMember {
	f.t.Helper()
	cs := companystore.New(f.es)
	m, err := cs.AddMember(ctx, models.CompanyMember{
		CompanyID:   companyID,
		UserID:      u.ID,
		UserEmail:   u.Email,
		DisplayName: u.DisplayName,
		Role:        role,
	})
	if err != nil {
		f.t.Fatalf("failed to add test company member: %v", err)
	}
	if err := cs.AdjustMemberCount(ctx, companyID, 1); err != nil {
		f.t.Fatalf("failed to bump member_count: %v", err)
	}
	return m
}

// CreateGroupPost creates a post in a group and bumps post_count.
func (f *Fixtures) CreateGroupPost(ctx context.Context, groupID primitive.ObjectID, author models.User, content string) models.Post {
	f.t.Helper()
	gid := groupID
	p, err := poststore.New(f.es).Create(ctx, models.Post{GroupID: &gid, AuthorID: author.ID, AuthorName: author.DisplayName, Content: content})
	if err != nil {
		f.t.Fatalf("failed to create test post: %v", err)
	}
	if err := groupstore.New(f.es).AdjustPostCount(ctx, groupID, 1); err != nil {
		f.t.Fatalf("failed to bump post_count: %v", err)
	}
	return p
}

// CreateCompanyPost creates a post in a company and bumps post_count.
func (f *Fixtures) CreateCompanyPost(ctx context.Context, companyID primitive.ObjectID, author models.User, content string) models.Post {
	f.t.Helper()
	cid := companyID
	p, err := poststore.New(f.es).Create(ctx, models.Post{CompanyID: &cid, AuthorID: author.ID, AuthorName: author.DisplayName, Content: content})
	if err != nil {
		f.t.Fatalf("failed to create test post: %v", err)
	}
	if err := companystore.New(f.es).AdjustPostCount(ctx, companyID, 1); err != nil {
		f.t.Fatalf("failed to bump post_count: %v", err)
	}
	return p
}

// AddComment adds a comment and bumps comment_count.
func (f *Fixtures) AddComment(ctx context.Context, postID primitive.ObjectID, author models.User, content string) models.Comment {
	f.t.Helper()
	ps := poststore.New(f.es)
	c, err := ps.AddComment(ctx, models.Comment{PostID: postID, AuthorID: author.ID, AuthorName: author.DisplayName, Content: content})
	if err != nil {
		f.t.Fatalf("failed to add test comment: %v", err)
	}
	if err := ps.AdjustCommentCount(ctx, postID, 1); err != nil {
		f.t.Fatalf("failed to bump comment_count: %v", err)
	}
	return c
}

// CreateCompletionRequest inserts a pending completion request for a group.
// It does not flag the group; use the lifecycle engine for that.
func (f *Fixtures) CreateCompletionRequest(ctx context.Context, groupID, requestedBy primitive.ObjectID, projectTitle string) models.CompletionRequest {
	f.t.Helper()
	c, err := completionstore.New(f.es).Create(ctx, models.CompletionRequest{
		GroupID:      groupID,
		ProjectTitle: projectTitle,
		RequestedBy:  requestedBy,
		Status:       models.CompletionPending,
	})
	if err != nil {
		f.t.Fatalf("failed to create test completion request: %v", err)
	}
	return c
}

// CreateApplication creates a pending application from u to join a project.
func (f *Fixtures) CreateApplication(ctx context.Context, projectID primitive.ObjectID, u models.User) models.ProjectApplication {
	f.t.Helper()
	a, err := applicationstore.New(f.es).Create(ctx, models.ProjectApplication{
		ProjectID:      projectID,
		ApplicantID:    u.ID,
		ApplicantEmail: u.Email,
		ApplicantName:  u.DisplayName,
		Status:         models.ApplicationPending,
	})
	if err != nil {
		f.t.Fatalf("failed to create test application: %v", err)
	}
	return a
}

// Insert writes an arbitrary document, for child rows without a typed store
// (badges, certificates, registrations).
func (f *Fixtures) Insert(ctx context.Context, coll string, doc any) {
	f.t.Helper()
	if err := f.es.Insert(ctx, coll, doc); err != nil {
		f.t.Fatalf("failed to insert into %s: %v", coll, err)
	}
}

// Count counts documents matching filter.
func (f *Fixtures) Count(ctx context.Context, coll string, filter entitystore.Filter) int64 {
	f.t.Helper()
	n, err := f.es.Count(ctx, coll, filter)
	if err != nil {
		f.t.Fatalf("failed to count %s: %v", coll, err)
	}
	return n
}
