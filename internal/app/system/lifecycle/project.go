package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ApproveProject creates the project's group with the owner as its admin,
// then marks the project approved. If any step before the status write
// fails, the group and membership are removed again.
func (e *Engine) ApproveProject(ctx context.Context, projectID, adminID primitive.ObjectID) (*Outcome, error) {
	o := newOutcome("project", "approve", projectID)

	p, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, e.fail(o, apperr.FromStore(err, "project", projectID.Hex()))
	}
	if p.Status.Terminal() {
		return nil, e.fail(o, apperr.Conflict("project %s is already %s", projectID.Hex(), p.Status))
	}
	_, known := models.ParseProjectStatus(p.RawStatus)
	e.legacy("project", p.RawStatus, known)

	owner, err := e.projectOwner(ctx, p)
	if err != nil {
		return nil, e.fail(o, err)
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "approve project")
	defer cancel()

	now := time.Now().UTC()
	var rb rollback
	groupID, err := e.createProjectGroup(ctx, &rb, p, owner, adminID)
	if err == nil {
		err = e.projects.MarkApproved(ctx, p.ID, adminID, groupID, now)
		if errors.Is(err, entitystore.ErrConflict) {
			err = apperr.Conflict("project %s was decided concurrently", projectID.Hex())
		} else if err != nil {
			err = apperr.FromStore(err, "project", projectID.Hex())
		}
	}
	if err != nil {
		if rerr := rb.run(ctx); rerr != nil {
			e.log.Error("approve project: compensation incomplete",
				zap.String("project_id", projectID.Hex()),
				zap.Error(rerr))
			err = fmt.Errorf("%w (compensation incomplete: %v)", err, rerr)
		}
		e.audit.TransitionFailed(ctx, adminID, "project", p.ID, "approve", err.Error())
		return nil, e.fail(o, err)
	}

	o.GroupID = groupID.Hex()
	e.audit.ProjectApproved(ctx, adminID, p.ID, groupID)

	pid, gid := p.ID, groupID
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifProjectApproved,
		Key:     "project_approved:" + p.ID.Hex(),
		Title:   "Project approved",
		Related: models.RelatedIDs{ProjectID: &pid, GroupID: &gid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, your project %q has been approved and its group is ready.", name, p.Title)
		},
	}, fanout.ProjectOwners(p.ID), primitive.NilObjectID))

	e.email(ctx, o, mailer.SendProjectApproved, mailer.Payload{ProjectData: &mailer.ProjectData{
		ProjectID:    p.ID.Hex(),
		Title:        p.Title,
		ContactName:  owner.Name,
		ContactEmail: owner.Email,
		GroupID:      groupID.Hex(),
	}})
	return e.done(o, adminID), nil
}

// createProjectGroup writes the group, its admin member, and the member
// count, recording an undo step for each.
func (e *Engine) createProjectGroup(ctx context.Context, rb *rollback, p models.Project, owner fanout.Person, adminID primitive.ObjectID) (primitive.ObjectID, error) {
	pid := p.ID
	g, err := e.groups.Create(ctx, models.Group{
		Name:         htmlsanitize.PlainText(p.Title, "Untitled Project"),
		Description:  htmlsanitize.PlainText(p.Description, ""),
		ContactEmail: owner.Email,
		ContactName:  owner.Name,
		ProjectID:    &pid,
		CreatedBy:    adminID,
	})
	if err != nil {
		if errors.Is(err, groupstore.ErrProjectHasGroup) {
			return primitive.NilObjectID, apperr.Conflict("project %s already has a group", p.ID.Hex())
		}
		return primitive.NilObjectID, apperr.FromStore(err, "group", p.ID.Hex())
	}
	rb.add("delete group", func(ctx context.Context) error { return e.groups.Delete(ctx, g.ID) })

	m, err := e.members.Add(ctx, models.GroupMember{
		GroupID:     g.ID,
		UserID:      owner.UserID,
		UserEmail:   owner.Email,
		DisplayName: owner.Name,
		Role:        models.RoleAdmin,
	})
	if err != nil {
		return primitive.NilObjectID, apperr.FromStore(err, "group member", g.ID.Hex())
	}
	rb.add("delete admin member", func(ctx context.Context) error { return e.members.Delete(ctx, m.ID) })

	if err := e.groups.AdjustMemberCount(ctx, g.ID, 1); err != nil {
		return primitive.NilObjectID, apperr.FromStore(err, "group", g.ID.Hex())
	}
	return g.ID, nil
}

// projectOwner resolves who becomes the group's admin: the owner account if
// linked, otherwise the account matching the contact email, otherwise the
// contact address alone.
func (e *Engine) projectOwner(ctx context.Context, p models.Project) (fanout.Person, error) {
	person := fanout.Person{UserID: p.OwnerUserID, Email: normalize.Email(p.ContactEmail)}

	var u *models.User
	switch {
	case !p.OwnerUserID.IsZero():
		found, err := e.users.GetByID(ctx, p.OwnerUserID)
		if err == nil {
			u = &found
		} else if !errors.Is(err, entitystore.ErrNotFound) {
			return person, apperr.FromStore(err, "user", p.OwnerUserID.Hex())
		}
	case person.Email != "":
		found, err := e.users.GetByEmail(ctx, person.Email)
		if err == nil {
			u = &found
			person.UserID = found.ID
		} else if !errors.Is(err, entitystore.ErrNotFound) {
			return person, apperr.FromStore(err, "user", person.Email)
		}
	}
	if u != nil && person.Email == "" {
		person.Email = u.Email
	}
	if person.UserID.IsZero() && person.Email == "" {
		return person, apperr.Validation("project %s has no owner or contact email", p.ID.Hex())
	}
	person.Name = fanout.DisplayName(u, htmlsanitize.PlainText(p.ContactName, ""), person.Email, fanout.FallbackTeamMember)
	return person, nil
}

// RejectProject marks a project rejected with a reason and tells its owner.
func (e *Engine) RejectProject(ctx context.Context, projectID, adminID primitive.ObjectID, rawReason string) (*Outcome, error) {
	o := newOutcome("project", "reject", projectID)

	why, err := reason(rawReason)
	if err != nil {
		return nil, e.fail(o, err)
	}
	p, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, e.fail(o, apperr.FromStore(err, "project", projectID.Hex()))
	}
	if p.Status.Terminal() {
		return nil, e.fail(o, apperr.Conflict("project %s is already %s", projectID.Hex(), p.Status))
	}
	_, known := models.ParseProjectStatus(p.RawStatus)
	e.legacy("project", p.RawStatus, known)

	ctx, cancel := timeouts.Detached(ctx, e.log, "reject project")
	defer cancel()

	if err := e.projects.MarkRejected(ctx, p.ID, adminID, why, time.Now().UTC()); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return nil, e.fail(o, apperr.Conflict("project %s was decided concurrently", projectID.Hex()))
		}
		return nil, e.fail(o, apperr.FromStore(err, "project", projectID.Hex()))
	}
	e.audit.ProjectRejected(ctx, adminID, p.ID, why)

	pid := p.ID
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifProjectRejected,
		Key:     "project_rejected:" + p.ID.Hex(),
		Title:   "Project not approved",
		Related: models.RelatedIDs{ProjectID: &pid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, your project %q was not approved. Reason: %s", name, p.Title, why)
		},
	}, fanout.ProjectOwners(p.ID), primitive.NilObjectID))

	e.email(ctx, o, mailer.SendProjectRejected, mailer.Payload{ProjectData: &mailer.ProjectData{
		ProjectID:    p.ID.Hex(),
		Title:        p.Title,
		ContactName:  fanout.DisplayName(nil, p.ContactName, p.ContactEmail, fanout.FallbackTeamMember),
		ContactEmail: p.ContactEmail,
		Reason:       why,
	}})
	return e.done(o, adminID), nil
}

// DeleteProject removes a project and everything that depends on it.
func (e *Engine) DeleteProject(ctx context.Context, projectID, adminID primitive.ObjectID, c cascade.Confirmation) (*cascade.Receipt, error) {
	return e.cascade.DeleteProject(ctx, projectID, adminID, c)
}
