// Package cascade deletes an entity together with every document that
// depends on it.
//
// Collections are processed one at a time in dependency order, children
// before the root. Within a collection the matching documents are deleted
// concurrently with bounded parallelism. A failed delete is recorded on the
// receipt and the cascade continues; the root is deleted last even when
// children failed, and the caller gets a PartialFailure with the receipt.
package cascade

import (
	"context"
	"errors"
	"time"

	companystore "github.com/dalemusser/collabhub/internal/app/store/companies"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	eventstore "github.com/dalemusser/collabhub/internal/app/store/events"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	poststore "github.com/dalemusser/collabhub/internal/app/store/posts"
	projectstore "github.com/dalemusser/collabhub/internal/app/store/projects"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/auditlog"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/metrics"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent deletes within one collection.
const DefaultParallelism = 8

// Engine runs cascades.
type Engine struct {
	es          entitystore.Store
	groups      *groupstore.Store
	projects    *projectstore.Store
	events      *eventstore.Store
	companies   *companystore.Store
	posts       *poststore.Store
	audit       *auditlog.Logger
	broker      *broker.Broker
	log         *zap.Logger
	parallelism int
}

func New(es entitystore.Store, audit *auditlog.Logger, b *broker.Broker, log *zap.Logger, parallelism int) *Engine {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Engine{
		es:          es,
		groups:      groupstore.New(es),
		projects:    projectstore.New(es),
		events:      eventstore.New(es),
		companies:   companystore.New(es),
		posts:       poststore.New(es),
		audit:       audit,
		broker:      b,
		log:         log,
		parallelism: parallelism,
	}
}

// DeleteGroup removes a group, its members, posts and their comments, badges,
// certificates, completion requests, and notifications.
func (e *Engine) DeleteGroup(ctx context.Context, groupID, actorID primitive.ObjectID, c Confirmation) (*Receipt, error) {
	if err := c.Check(RootGroup); err != nil {
		return nil, err
	}
	if _, err := e.groups.GetByID(ctx, groupID); err != nil {
		return nil, apperr.FromStore(err, "group", groupID.Hex())
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "cascade delete group")
	defer cancel()

	r := newReceipt(RootGroup, groupID.Hex())
	e.groupClosure(ctx, r, groupID)
	return e.finish(ctx, r, actorID, entitystore.Groups, groupID)
}

// groupClosure deletes everything hanging off a group. The group itself is
// left to the caller.
func (e *Engine) groupClosure(ctx context.Context, r *Receipt, groupID primitive.ObjectID) {
	e.deleteWhere(ctx, r, entitystore.GroupMembers, entitystore.Filter{"group_id": groupID})

	postIDs, err := e.es.IDs(ctx, entitystore.Posts, entitystore.Filter{"group_id": groupID})
	if err != nil {
		r.fail(entitystore.Posts, "", err)
	}
	if len(postIDs) > 0 {
		e.deleteWhere(ctx, r, entitystore.Comments, entitystore.Filter{"post_id": bson.M{"$in": postIDs}})
		e.deleteWhere(ctx, r, entitystore.Notifications, entitystore.Filter{"related_ids.post_id": bson.M{"$in": postIDs}})
		e.deleteIDs(ctx, r, entitystore.Posts, postIDs)
	}

	e.deleteWhere(ctx, r, entitystore.MemberBadges, entitystore.Filter{"group_id": groupID})
	e.deleteWhere(ctx, r, entitystore.Certificates, entitystore.Filter{"group_id": groupID})
	e.deleteWhere(ctx, r, entitystore.CompletionRequests, entitystore.Filter{"group_id": groupID})
	e.deleteWhere(ctx, r, entitystore.Notifications, entitystore.Filter{"related_ids.group_id": groupID})
}

// DeleteProject removes a project, its group closure when it has one, its
// applications, and its notifications.
func (e *Engine) DeleteProject(ctx context.Context, projectID, actorID primitive.ObjectID, c Confirmation) (*Receipt, error) {
	if err := c.Check(RootProject); err != nil {
		return nil, err
	}
	p, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, apperr.FromStore(err, "project", projectID.Hex())
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "cascade delete project")
	defer cancel()

	r := newReceipt(RootProject, projectID.Hex())

	groupID := primitive.NilObjectID
	if p.GroupID != nil {
		groupID = *p.GroupID
	} else if g, err := e.groups.GetByProject(ctx, projectID); err == nil {
		// A group left behind by an interrupted approval.
		groupID = g.ID
	} else if !errors.Is(err, entitystore.ErrNotFound) {
		r.fail(entitystore.Groups, "", err)
	}
	if !groupID.IsZero() {
		e.groupClosure(ctx, r, groupID)
		e.deleteIDs(ctx, r, entitystore.Groups, []primitive.ObjectID{groupID})
	}

	e.deleteWhere(ctx, r, entitystore.ProjectApplications, entitystore.Filter{"project_id": projectID})
	e.deleteWhere(ctx, r, entitystore.Notifications, entitystore.Filter{"related_ids.project_id": projectID})
	return e.finish(ctx, r, actorID, entitystore.Projects, projectID)
}

// DeleteEvent removes an event, its registrations, and its notifications.
func (e *Engine) DeleteEvent(ctx context.Context, eventID, actorID primitive.ObjectID, c Confirmation) (*Receipt, error) {
	if err := c.Check(RootEvent); err != nil {
		return nil, err
	}
	if _, err := e.events.GetByID(ctx, eventID); err != nil {
		return nil, apperr.FromStore(err, "event", eventID.Hex())
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "cascade delete event")
	defer cancel()

	r := newReceipt(RootEvent, eventID.Hex())
	e.deleteWhere(ctx, r, entitystore.EventRegistrations, entitystore.Filter{"event_id": eventID})
	e.deleteWhere(ctx, r, entitystore.Notifications, entitystore.Filter{"related_ids.event_id": eventID})
	return e.finish(ctx, r, actorID, entitystore.Events, eventID)
}

// DeleteCompany removes a company, its members, and its notifications.
// Company posts are left in place.
func (e *Engine) DeleteCompany(ctx context.Context, companyID, actorID primitive.ObjectID, c Confirmation) (*Receipt, error) {
	if err := c.Check(RootCompany); err != nil {
		return nil, err
	}
	if _, err := e.companies.GetByID(ctx, companyID); err != nil {
		return nil, apperr.FromStore(err, "company", companyID.Hex())
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "cascade delete company")
	defer cancel()

	r := newReceipt(RootCompany, companyID.Hex())
	e.deleteWhere(ctx, r, entitystore.CompanyMembers, entitystore.Filter{"company_id": companyID})
	e.deleteWhere(ctx, r, entitystore.Notifications, entitystore.Filter{"related_ids.company_id": companyID})
	return e.finish(ctx, r, actorID, entitystore.Companies, companyID)
}

// DeletePost removes a post, its comments, and its notifications, and
// decrements the parent's post_count.
func (e *Engine) DeletePost(ctx context.Context, postID, actorID primitive.ObjectID, c Confirmation) (*Receipt, error) {
	if err := c.Check(RootPost); err != nil {
		return nil, err
	}
	p, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.FromStore(err, "post", postID.Hex())
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "cascade delete post")
	defer cancel()

	r := newReceipt(RootPost, postID.Hex())
	e.deleteWhere(ctx, r, entitystore.Comments, entitystore.Filter{"post_id": postID})
	e.deleteWhere(ctx, r, entitystore.Notifications, entitystore.Filter{"related_ids.post_id": postID})

	rcpt, ferr := e.finish(ctx, r, actorID, entitystore.Posts, postID)
	if rcpt.RootDeleted {
		e.decrementParent(ctx, r, p.GroupID, p.CompanyID)
	}
	return rcpt, ferr
}

func (e *Engine) decrementParent(ctx context.Context, r *Receipt, groupID, companyID *primitive.ObjectID) {
	var err error
	var coll string
	switch {
	case groupID != nil:
		coll = entitystore.Groups
		err = e.groups.AdjustPostCount(ctx, *groupID, -1)
	case companyID != nil:
		coll = entitystore.Companies
		err = e.companies.AdjustPostCount(ctx, *companyID, -1)
	default:
		return
	}
	if err != nil && !errors.Is(err, entitystore.ErrNotFound) {
		// The reconciler corrects post_count drift on its next pass.
		e.log.Warn("cascade: post_count decrement failed",
			zap.String("receipt_id", r.ID),
			zap.String("collection", coll),
			zap.Error(err))
	}
}

// deleteWhere deletes every document in coll matching filter.
func (e *Engine) deleteWhere(ctx context.Context, r *Receipt, coll string, filter entitystore.Filter) {
	ids, err := e.es.IDs(ctx, coll, filter)
	if err != nil {
		r.fail(coll, "", err)
		return
	}
	e.deleteIDs(ctx, r, coll, ids)
}

// deleteIDs deletes ids concurrently, at most e.parallelism at a time. A
// document that is already gone is not an error and is not counted.
func (e *Engine) deleteIDs(ctx context.Context, r *Receipt, coll string, ids []primitive.ObjectID) {
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			err := e.es.Delete(ctx, coll, id)
			switch {
			case err == nil:
				r.deleted(coll)
			case errors.Is(err, entitystore.ErrNotFound):
			default:
				r.fail(coll, id.Hex(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// finish deletes the root, stamps the receipt, and records the cascade.
func (e *Engine) finish(ctx context.Context, r *Receipt, actorID primitive.ObjectID, coll string, id primitive.ObjectID) (*Receipt, error) {
	err := e.es.Delete(ctx, coll, id)
	switch {
	case err == nil:
		r.RootDeleted = true
		r.deleted(coll)
	case errors.Is(err, entitystore.ErrNotFound):
		// Deleted concurrently; the end state is the same.
		r.RootDeleted = true
	default:
		r.fail(coll, id.Hex(), err)
	}
	r.FinishedAt = time.Now().UTC()

	partial := r.Partial()
	metrics.RecordCascade(string(r.Root), partial, r.Counts)
	e.audit.CascadeDeleted(ctx, actorID, string(r.Root), id, r.ID, r.Counts, len(r.Errors))
	e.broker.Publish(broker.Message{
		Kind:     "cascade.deleted",
		Entity:   string(r.Root),
		EntityID: id.Hex(),
		ActorID:  actorID.Hex(),
		At:       r.FinishedAt,
		Data:     map[string]string{"receipt_id": r.ID},
	})

	fields := []zap.Field{
		zap.String("receipt_id", r.ID),
		zap.String("root", string(r.Root)),
		zap.String("root_id", r.RootID),
		zap.Int("deleted", r.Total()),
		zap.Int("errors", len(r.Errors)),
		zap.Duration("took", r.FinishedAt.Sub(r.StartedAt)),
	}
	if partial {
		e.log.Warn("cascade finished with errors", append(fields, zap.Error(r.Err()))...)
		return r, &PartialFailure{Receipt: r}
	}
	e.log.Info("cascade finished", fields...)
	return r, nil
}
