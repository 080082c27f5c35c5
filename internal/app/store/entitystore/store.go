// Package entitystore is the persistence contract shared by every typed
// store. Two backends implement it: MongoDB for production and an in-memory
// store used by tests and single-process development.
//
// Documents are addressed by collection name and ObjectID. Filters use the
// MongoDB query dialect (equality, dotted paths, $in, $nin, $ne, $exists,
// and the range operators), and mutations are applied atomically per
// document.
package entitystore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names.
const (
	Projects            = "projects"
	Events              = "events"
	EventRegistrations  = "event_registrations"
	CompletionRequests  = "completion_requests"
	Groups              = "groups"
	GroupMembers        = "group_members"
	Posts               = "posts"
	Comments            = "comments"
	Companies           = "companies"
	CompanyMembers      = "company_members"
	Notifications       = "notifications"
	ProjectApplications = "project_applications"
	MemberBadges        = "member_badges"
	Certificates        = "certificates"
	Users               = "users"
	Admins              = "admins"
	AuditEvents         = "audit_events"
)

// Error kinds every backend maps its native errors onto.
var (
	ErrNotFound         = errors.New("entitystore: document not found")
	ErrConflict         = errors.New("entitystore: conflict")
	ErrPermissionDenied = errors.New("entitystore: permission denied")
	ErrUnavailable      = errors.New("entitystore: store unavailable")
)

// Filter selects documents. An empty filter matches everything.
type Filter = bson.M

// Mutation is applied atomically to a single document. Inc values must be
// integers; AddToSet and Pull operate on array fields.
type Mutation struct {
	Set      bson.M
	Inc      bson.M
	AddToSet bson.M
	Pull     bson.M
}

func (m Mutation) empty() bool {
	return len(m.Set) == 0 && len(m.Inc) == 0 && len(m.AddToSet) == 0 && len(m.Pull) == 0
}

// Index describes a secondary index. Sparse unique indexes ignore documents
// that do not carry every indexed field.
type Index struct {
	Collection string
	Name       string
	Fields     []string
	Unique     bool
	Sparse     bool
}

// Store is the read/write contract. Insert returns ErrConflict when a unique
// index would be violated. Apply returns ErrNotFound when no document has the
// id and ErrConflict when the document exists but does not match cond.
type Store interface {
	Get(ctx context.Context, coll string, id primitive.ObjectID, out any) error
	FindOne(ctx context.Context, coll string, filter Filter, out any) error
	Find(ctx context.Context, coll string, filter Filter, out any) error
	Count(ctx context.Context, coll string, filter Filter) (int64, error)
	IDs(ctx context.Context, coll string, filter Filter) ([]primitive.ObjectID, error)

	Insert(ctx context.Context, coll string, doc any) error
	Apply(ctx context.Context, coll string, id primitive.ObjectID, cond Filter, m Mutation) error
	Delete(ctx context.Context, coll string, id primitive.ObjectID) error
	DeleteMany(ctx context.Context, coll string, filter Filter) (int64, error)

	EnsureIndexes(ctx context.Context, indexes []Index) error
	Ping(ctx context.Context) error
}

// Set updates fields on one document unconditionally.
func Set(ctx context.Context, s Store, coll string, id primitive.ObjectID, fields bson.M) error {
	return s.Apply(ctx, coll, id, nil, Mutation{Set: fields})
}

// Increment atomically adds delta to an integer field.
func Increment(ctx context.Context, s Store, coll string, id primitive.ObjectID, field string, delta int64) error {
	return s.Apply(ctx, coll, id, nil, Mutation{Inc: bson.M{field: delta}})
}

// CompareAndSet sets fields only if the document still matches cond.
func CompareAndSet(ctx context.Context, s Store, coll string, id primitive.ObjectID, cond Filter, fields bson.M) error {
	return s.Apply(ctx, coll, id, cond, Mutation{Set: fields})
}

// NotTerminal builds a condition matching any stored status other than the
// given terminal spellings, including a missing status field.
func NotTerminal(terminal []string) Filter {
	return Filter{"status": bson.M{"$nin": terminal}}
}

// CounterIs matches an integer field holding n. A missing field counts as
// zero.
func CounterIs(field string, n int64) Filter {
	if n == 0 {
		return Filter{field: bson.M{"$in": bson.A{0, nil}}}
	}
	return Filter{field: n}
}
