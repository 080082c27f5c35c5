package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SubmitCompletion asks admins to review a finished group. The caller must
// be an active member, and the group may have only one pending request.
func (e *Engine) SubmitCompletion(ctx context.Context, groupID, userID primitive.ObjectID) (models.CompletionRequest, error) {
	o := newOutcome("completion", "submit", groupID)

	g, err := e.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.CompletionRequest{}, e.fail(o, apperr.FromStore(err, "group", groupID.Hex()))
	}
	m, err := e.members.Get(ctx, groupID, models.MemberKey(userID, ""))
	if err != nil && !errors.Is(err, entitystore.ErrNotFound) {
		return models.CompletionRequest{}, e.fail(o, apperr.FromStore(err, "group member", userID.Hex()))
	}
	if err != nil || m.Status != models.MemberActive {
		return models.CompletionRequest{}, e.fail(o, fmt.Errorf("%w: user %s is not a member of group %s",
			apperr.ErrPermission, userID.Hex(), groupID.Hex()))
	}
	if g.Status != models.GroupActive {
		return models.CompletionRequest{}, e.fail(o, apperr.Conflict("group %s is %s", groupID.Hex(), g.Status))
	}

	title := g.Name
	var projectID primitive.ObjectID
	if g.ProjectID != nil {
		projectID = *g.ProjectID
		if p, err := e.projects.GetByID(ctx, projectID); err == nil {
			title = p.Title
		}
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "submit completion")
	defer cancel()

	now := time.Now().UTC()
	reqID := primitive.NewObjectID()
	if err := e.groups.RequestCompletion(ctx, groupID, reqID, now); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return models.CompletionRequest{}, e.fail(o, apperr.Conflict("group %s already has a pending completion request", groupID.Hex()))
		}
		return models.CompletionRequest{}, e.fail(o, apperr.FromStore(err, "group", groupID.Hex()))
	}

	req, err := e.completions.Create(ctx, models.CompletionRequest{
		ID:           reqID,
		GroupID:      groupID,
		ProjectID:    projectID,
		ProjectTitle: title,
		RequestedBy:  userID,
	})
	if err != nil {
		if rerr := e.groups.ResetCompletion(ctx, groupID, now); rerr != nil {
			e.log.Error("submit completion: could not clear group flag",
				zap.String("group_id", groupID.Hex()),
				zap.Error(rerr))
		}
		return models.CompletionRequest{}, e.fail(o, apperr.FromStore(err, "completion request", groupID.Hex()))
	}

	o.GroupID = groupID.Hex()
	o.ID = req.ID.Hex()
	e.done(o, userID)
	return req, nil
}

// ApproveCompletion approves a pending request and moves its group to
// ready_for_badge_assignment.
func (e *Engine) ApproveCompletion(ctx context.Context, requestID, adminID primitive.ObjectID) (*Outcome, error) {
	o := newOutcome("completion", "approve", requestID)

	req, err := e.decidableCompletion(ctx, requestID)
	if err != nil {
		return nil, e.fail(o, err)
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "approve completion")
	defer cancel()

	now := time.Now().UTC()
	if err := e.completions.MarkApproved(ctx, req.ID, adminID, now); err != nil {
		return nil, e.fail(o, completionWriteErr(err, requestID))
	}
	o.GroupID = req.GroupID.Hex()
	if err := e.groups.MarkReadyForBadges(ctx, req.GroupID, now); err != nil {
		o.warn("group %s was not moved to ready_for_badge_assignment: %v", req.GroupID.Hex(), err)
		e.log.Error("approve completion: group update failed",
			zap.String("request_id", req.ID.Hex()),
			zap.String("group_id", req.GroupID.Hex()),
			zap.Error(err))
		e.audit.TransitionFailed(ctx, adminID, "group", req.GroupID, "ready_for_badges", err.Error())
	}
	e.audit.CompletionApproved(ctx, adminID, req.ID, req.GroupID)

	e.notifyGroupAdmins(ctx, o, req, models.NotifCompletionApproved, "Completion approved",
		func(name string) string {
			return fmt.Sprintf("Hi %s, the completion review for %q was approved. Badges can now be assigned.", name, req.ProjectTitle)
		},
		mailer.SendProjectReviewApproved, "")
	return e.done(o, adminID), nil
}

// RejectCompletion rejects a pending request with a reason and reopens the
// group so members can submit again.
func (e *Engine) RejectCompletion(ctx context.Context, requestID, adminID primitive.ObjectID, rawReason string) (*Outcome, error) {
	o := newOutcome("completion", "reject", requestID)

	why, err := reason(rawReason)
	if err != nil {
		return nil, e.fail(o, err)
	}
	req, err := e.decidableCompletion(ctx, requestID)
	if err != nil {
		return nil, e.fail(o, err)
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "reject completion")
	defer cancel()

	now := time.Now().UTC()
	if err := e.completions.MarkRejected(ctx, req.ID, why, now); err != nil {
		return nil, e.fail(o, completionWriteErr(err, requestID))
	}
	o.GroupID = req.GroupID.Hex()
	if err := e.groups.ResetCompletion(ctx, req.GroupID, now); err != nil {
		o.warn("group %s completion flags were not cleared: %v", req.GroupID.Hex(), err)
		e.log.Error("reject completion: group reset failed",
			zap.String("request_id", req.ID.Hex()),
			zap.String("group_id", req.GroupID.Hex()),
			zap.Error(err))
		e.audit.TransitionFailed(ctx, adminID, "group", req.GroupID, "reset_completion", err.Error())
	}
	e.audit.CompletionRejected(ctx, adminID, req.ID, req.GroupID, why)

	e.notifyGroupAdmins(ctx, o, req, models.NotifCompletionRejected, "Completion not approved",
		func(name string) string {
			return fmt.Sprintf("Hi %s, the completion review for %q was not approved. Reason: %s", name, req.ProjectTitle, why)
		},
		mailer.SendProjectReviewRejected, why)
	return e.done(o, adminID), nil
}

// notifyGroupAdmins writes the in-app notification to the group's admins
// and emails each of them.
func (e *Engine) notifyGroupAdmins(ctx context.Context, o *Outcome, req models.CompletionRequest, typ models.NotificationType, title string, msg func(string) string, key mailer.EndpointKey, why string) {
	gid := req.GroupID
	related := models.RelatedIDs{GroupID: &gid}
	if !req.ProjectID.IsZero() {
		pid := req.ProjectID
		related.ProjectID = &pid
	}
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    typ,
		Key:     string(typ) + ":" + req.ID.Hex(),
		Title:   title,
		Related: related,
		Message: msg,
	}, fanout.GroupAdmins(req.GroupID), primitive.NilObjectID))

	admins, err := e.members.ListAdmins(ctx, req.GroupID)
	if err != nil {
		o.warn("email %s skipped: listing group admins: %v", key, err)
		return
	}
	for _, a := range admins {
		e.email(ctx, o, key, mailer.Payload{CompletionData: &mailer.CompletionData{
			RequestID:      req.ID.Hex(),
			GroupID:        req.GroupID.Hex(),
			ProjectTitle:   req.ProjectTitle,
			RecipientName:  fanout.DisplayName(nil, a.DisplayName, a.UserEmail, fanout.FallbackTeamMember),
			RecipientEmail: a.UserEmail,
			Reason:         why,
		}})
	}
}

func (e *Engine) decidableCompletion(ctx context.Context, requestID primitive.ObjectID) (models.CompletionRequest, error) {
	req, err := e.completions.GetByID(ctx, requestID)
	if err != nil {
		return models.CompletionRequest{}, apperr.FromStore(err, "completion request", requestID.Hex())
	}
	if req.Status.Terminal() {
		return models.CompletionRequest{}, apperr.Conflict("completion request %s is already %s", requestID.Hex(), req.Status)
	}
	_, known := models.ParseCompletionStatus(req.RawStatus)
	e.legacy("completion_request", req.RawStatus, known)
	return req, nil
}

func completionWriteErr(err error, requestID primitive.ObjectID) error {
	if errors.Is(err, entitystore.ErrConflict) {
		return apperr.Conflict("completion request %s was decided concurrently", requestID.Hex())
	}
	return apperr.FromStore(err, "completion request", requestID.Hex())
}
