package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ApproveEvent publishes an event. No group is created. The organizer and
// the owners of every selected project are told.
func (e *Engine) ApproveEvent(ctx context.Context, eventID, adminID primitive.ObjectID) (*Outcome, error) {
	o := newOutcome("event", "approve", eventID)

	ev, err := e.decidableEvent(ctx, eventID)
	if err != nil {
		return nil, e.fail(o, err)
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "approve event")
	defer cancel()

	if err := e.events.MarkApproved(ctx, ev.ID, adminID, time.Now().UTC()); err != nil {
		return nil, e.fail(o, eventWriteErr(err, eventID))
	}
	e.audit.EventApproved(ctx, adminID, ev.ID)

	eid := ev.ID
	organizer := fanout.DisplayName(nil, ev.OrganizerName, ev.OrganizerEmail, fanout.FallbackTeamMember)
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifEventApproved,
		Key:     "event_approved:" + ev.ID.Hex(),
		Title:   "Event published",
		Related: models.RelatedIDs{EventID: &eid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, your event %q has been approved and is now live.", name, ev.Title)
		},
	}, fanout.Email(ev.OrganizerEmail, organizer), primitive.NilObjectID))

	if len(ev.SelectedProjectIDs) > 0 {
		o.addNotify(e.fanout.Notify(ctx, fanout.Event{
			Type:    models.NotifEventProjectListed,
			Key:     "event_project_selected:" + ev.ID.Hex(),
			Title:   "Your project is featured in an event",
			Related: models.RelatedIDs{EventID: &eid},
			Message: func(name string) string {
				return fmt.Sprintf("Hi %s, your project was selected for the event %q.", name, ev.Title)
			},
		}, fanout.ProjectOwners(ev.SelectedProjectIDs...), primitive.NilObjectID))
	}

	e.email(ctx, o, mailer.SendEventPublished, mailer.Payload{EventData: &mailer.EventData{
		EventID:        ev.ID.Hex(),
		Title:          ev.Title,
		OrganizerName:  organizer,
		OrganizerEmail: ev.OrganizerEmail,
		BannerURL:      ev.BannerURL,
	}})
	return e.done(o, adminID), nil
}

// RejectEvent rejects an event with a reason and tells the organizer.
func (e *Engine) RejectEvent(ctx context.Context, eventID, adminID primitive.ObjectID, rawReason string) (*Outcome, error) {
	o := newOutcome("event", "reject", eventID)

	why, err := reason(rawReason)
	if err != nil {
		return nil, e.fail(o, err)
	}
	ev, err := e.decidableEvent(ctx, eventID)
	if err != nil {
		return nil, e.fail(o, err)
	}

	ctx, cancel := timeouts.Detached(ctx, e.log, "reject event")
	defer cancel()

	if err := e.events.MarkRejected(ctx, ev.ID, adminID, why, time.Now().UTC()); err != nil {
		return nil, e.fail(o, eventWriteErr(err, eventID))
	}
	e.audit.EventRejected(ctx, adminID, ev.ID, why)

	eid := ev.ID
	organizer := fanout.DisplayName(nil, ev.OrganizerName, ev.OrganizerEmail, fanout.FallbackTeamMember)
	o.addNotify(e.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifEventRejected,
		Key:     "event_rejected:" + ev.ID.Hex(),
		Title:   "Event not approved",
		Related: models.RelatedIDs{EventID: &eid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, your event %q was not approved. Reason: %s", name, ev.Title, why)
		},
	}, fanout.Email(ev.OrganizerEmail, organizer), primitive.NilObjectID))

	e.email(ctx, o, mailer.SendEventRejected, mailer.Payload{EventData: &mailer.EventData{
		EventID:        ev.ID.Hex(),
		Title:          ev.Title,
		OrganizerName:  organizer,
		OrganizerEmail: ev.OrganizerEmail,
		BannerURL:      ev.BannerURL,
		Reason:         why,
	}})
	return e.done(o, adminID), nil
}

// DeleteEvent removes an event with its registrations and notifications.
func (e *Engine) DeleteEvent(ctx context.Context, eventID, adminID primitive.ObjectID, c cascade.Confirmation) (*cascade.Receipt, error) {
	return e.cascade.DeleteEvent(ctx, eventID, adminID, c)
}

func (e *Engine) decidableEvent(ctx context.Context, eventID primitive.ObjectID) (models.Event, error) {
	ev, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return models.Event{}, apperr.FromStore(err, "event", eventID.Hex())
	}
	if ev.Status.Terminal() {
		return models.Event{}, apperr.Conflict("event %s is already %s", eventID.Hex(), ev.Status)
	}
	_, known := models.ParseEventStatus(ev.RawStatus)
	e.legacy("event", ev.RawStatus, known)
	return ev, nil
}

func eventWriteErr(err error, eventID primitive.ObjectID) error {
	if errors.Is(err, entitystore.ErrConflict) {
		return apperr.Conflict("event %s was decided concurrently", eventID.Hex())
	}
	return apperr.FromStore(err, "event", eventID.Hex())
}
