package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/community"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ApproveApplication accepts an applicant into the project's group. The
// application is marked approved first; if the membership cannot be added it
// goes back to pending.
func (e *Engine) ApproveApplication(ctx context.Context, applicationID, adminID primitive.ObjectID) (*Outcome, error) {
	o := newOutcome("application", "approve", applicationID)

	a, err := e.decidableApplication(ctx, applicationID)
	if err != nil {
		return nil, e.fail(o, err)
	}
	p, err := e.projects.GetByID(ctx, a.ProjectID)
	if err != nil {
		return nil, e.fail(o, apperr.FromStore(err, "project", a.ProjectID.Hex()))
	}
	if p.GroupID == nil {
		return nil, e.fail(o, apperr.Conflict("project %s has no group yet", p.ID.Hex()))
	}
	groupID := *p.GroupID

	ctx, cancel := timeouts.Detached(ctx, e.log, "approve application")
	defer cancel()

	if err := e.applications.MarkApproved(ctx, a.ID, adminID, time.Now().UTC()); err != nil {
		return nil, e.fail(o, applicationWriteErr(err, applicationID))
	}

	res, err := e.community.AddGroupMember(ctx, groupID, community.Member{
		UserID: a.ApplicantID,
		Email:  a.ApplicantEmail,
		Name:   a.ApplicantName,
		Role:   models.RoleMember,
	})
	if err != nil {
		if rerr := e.applications.RevertToPending(ctx, a.ID); rerr != nil {
			e.log.Error("approve application: could not revert to pending",
				zap.String("application_id", a.ID.Hex()),
				zap.Error(rerr))
			err = fmt.Errorf("%w (revert failed: %v)", err, rerr)
		}
		e.audit.TransitionFailed(ctx, adminID, "application", a.ID, "approve", err.Error())
		return nil, e.fail(o, err)
	}
	o.GroupID = groupID.Hex()
	if !res.Joined {
		o.warn("applicant was already an active member of group %s", groupID.Hex())
	}
	e.audit.ApplicationApproved(ctx, adminID, a.ID, groupID)

	if res.Joined {
		o.addNotify(e.community.AnnounceGroupJoin(ctx, groupID, res, "group_member_joined:"+a.ID.Hex()))
	}

	gid, pid := groupID, p.ID
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifApplicationApproved,
		Key:     "application_approved:" + a.ID.Hex(),
		Title:   "Application approved",
		Related: models.RelatedIDs{GroupID: &gid, ProjectID: &pid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, you have been accepted into %q.", name, p.Title)
		},
	}, applicantAudience(a, res), primitive.NilObjectID))

	e.email(ctx, o, mailer.SendApplicationApproved, mailer.Payload{ApplicationData: &mailer.ApplicationData{
		ApplicationID:  a.ID.Hex(),
		ProjectTitle:   p.Title,
		ApplicantName:  res.Name,
		ApplicantEmail: res.Email,
	}})
	return e.done(o, adminID), nil
}

// RejectApplication declines an application with a reason.
func (e *Engine) RejectApplication(ctx context.Context, applicationID, adminID primitive.ObjectID, rawReason string) (*Outcome, error) {
	o := newOutcome("application", "reject", applicationID)

	why, err := reason(rawReason)
	if err != nil {
		return nil, e.fail(o, err)
	}
	a, err := e.decidableApplication(ctx, applicationID)
	if err != nil {
		return nil, e.fail(o, err)
	}
	title := "the project"
	if p, err := e.projects.GetByID(ctx, a.ProjectID); err == nil {
		title = p.Title
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "reject application")
	defer cancel()

	if err := e.applications.MarkRejected(ctx, a.ID, adminID, why, time.Now().UTC()); err != nil {
		return nil, e.fail(o, applicationWriteErr(err, applicationID))
	}
	e.audit.ApplicationRejected(ctx, adminID, a.ID, why)

	pid := a.ProjectID
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifApplicationRejected,
		Key:     "application_rejected:" + a.ID.Hex(),
		Title:   "Application not accepted",
		Related: models.RelatedIDs{ProjectID: &pid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, your application to %q was not accepted. Reason: %s", name, title, why)
		},
	}, applicantAudience(a, community.Membership{}), primitive.NilObjectID))

	e.email(ctx, o, mailer.SendApplicationRejected, mailer.Payload{ApplicationData: &mailer.ApplicationData{
		ApplicationID:  a.ID.Hex(),
		ProjectTitle:   title,
		ApplicantName:  fanout.DisplayName(nil, a.ApplicantName, a.ApplicantEmail, fanout.FallbackTeamMember),
		ApplicantEmail: a.ApplicantEmail,
		Reason:         why,
	}})
	return e.done(o, adminID), nil
}

func applicantAudience(a models.ProjectApplication, res community.Membership) fanout.Audience {
	switch {
	case !res.UserID.IsZero():
		return fanout.User(res.UserID)
	case !a.ApplicantID.IsZero():
		return fanout.User(a.ApplicantID)
	}
	return fanout.Email(a.ApplicantEmail, a.ApplicantName)
}

func (e *Engine) decidableApplication(ctx context.Context, applicationID primitive.ObjectID) (models.ProjectApplication, error) {
	a, err := e.applications.GetByID(ctx, applicationID)
	if err != nil {
		return models.ProjectApplication{}, apperr.FromStore(err, "application", applicationID.Hex())
	}
	if a.Status.Terminal() {
		return models.ProjectApplication{}, apperr.Conflict("application %s is already %s", applicationID.Hex(), a.Status)
	}
	_, known := models.ParseApplicationStatus(a.RawStatus)
	e.legacy("application", a.RawStatus, known)
	return a, nil
}

func applicationWriteErr(err error, applicationID primitive.ObjectID) error {
	if errors.Is(err, entitystore.ErrConflict) {
		return apperr.Conflict("application %s was decided concurrently", applicationID.Hex())
	}
	return apperr.FromStore(err, "application", applicationID.Hex())
}
