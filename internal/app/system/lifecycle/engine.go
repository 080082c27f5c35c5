// Package lifecycle drives projects, events, completion requests, and
// project applications through their approval state machines.
//
// Every transition follows the same order: validate, compare-and-set the
// stored status, then best-effort side effects (notifications, email). The
// status write is the commit point. Anything created before it (a project's
// group and admin membership) is compensated if the write fails, and
// nothing after it can undo the transition.
//
// Writes run on a context detached from the caller, so a dropped request
// cannot leave an approval half applied.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	applicationstore "github.com/dalemusser/collabhub/internal/app/store/applications"
	completionstore "github.com/dalemusser/collabhub/internal/app/store/completions"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	eventstore "github.com/dalemusser/collabhub/internal/app/store/events"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	projectstore "github.com/dalemusser/collabhub/internal/app/store/projects"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/auditlog"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/app/system/community"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"github.com/dalemusser/collabhub/internal/app/system/metrics"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Deps are the collaborators an Engine needs. Only Store is required;
// the rest default to working in-process implementations.
type Deps struct {
	Store     entitystore.Store
	Fanout    *fanout.Fanout
	Mailer    mailer.Dispatcher
	Audit     *auditlog.Logger
	Broker    *broker.Broker
	Cascade   *cascade.Engine
	Community *community.Service
	Log       *zap.Logger
}

type Engine struct {
	projects     *projectstore.Store
	events       *eventstore.Store
	groups       *groupstore.Store
	members      *membershipstore.Store
	completions  *completionstore.Store
	applications *applicationstore.Store
	users        *userstore.Store

	fanout    *fanout.Fanout
	mailer    mailer.Dispatcher
	audit     *auditlog.Logger
	broker    *broker.Broker
	cascade   *cascade.Engine
	community *community.Service
	log       *zap.Logger
}

func New(d Deps) *Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Fanout == nil {
		d.Fanout = fanout.New(d.Store, log)
	}
	if d.Mailer == nil {
		d.Mailer = mailer.LogDispatcher{Log: log}
	}
	if d.Cascade == nil {
		d.Cascade = cascade.New(d.Store, d.Audit, d.Broker, log, cascade.DefaultParallelism)
	}
	if d.Community == nil {
		d.Community = community.New(community.Deps{
			Store:  d.Store,
			Fanout: d.Fanout,
			Audit:  d.Audit,
			Broker: d.Broker,
			Log:    log,
		})
	}
	return &Engine{
		projects:     projectstore.New(d.Store),
		events:       eventstore.New(d.Store),
		groups:       groupstore.New(d.Store),
		members:      membershipstore.New(d.Store),
		completions:  completionstore.New(d.Store),
		applications: applicationstore.New(d.Store),
		users:        userstore.New(d.Store),
		fanout:       d.Fanout,
		mailer:       d.Mailer,
		audit:        d.Audit,
		broker:       d.Broker,
		cascade:      d.Cascade,
		community:    d.Community,
		log:          log,
	}
}

// Outcome reports a transition that committed, and how its side effects
// went. Side-effect failures show up here and in the log, never as an error.
type Outcome struct {
	Entity    string `json:"entity"`
	Action    string `json:"action"`
	ID        string `json:"id"`
	Succeeded bool   `json:"succeeded"`
	GroupID   string `json:"group_id,omitempty"`

	NotificationsWritten   int `json:"notifications_written"`
	NotificationsDuplicate int `json:"notifications_duplicate"`
	NotificationsFailed    int `json:"notifications_failed"`
	EmailsSent             int `json:"emails_sent"`
	EmailsFailed           int `json:"emails_failed"`

	Warnings []string `json:"warnings,omitempty"`

	start time.Time
}

func newOutcome(entity, action string, id primitive.ObjectID) *Outcome {
	return &Outcome{Entity: entity, Action: action, ID: id.Hex(), start: time.Now()}
}

func (o *Outcome) warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

func (o *Outcome) addNotify(r fanout.Result) {
	o.NotificationsWritten += r.Written
	o.NotificationsDuplicate += r.Duplicate
	o.NotificationsFailed += r.Failed
	if r.Err != nil {
		o.warn("notifications: %v", r.Err)
	}
}

// fail records a transition that did not commit.
func (e *Engine) fail(o *Outcome, err error) error {
	metrics.RecordTransition(o.Entity, o.Action, apperr.Code(err), time.Since(o.start))
	e.log.Info("transition refused",
		zap.String("entity", o.Entity),
		zap.String("action", o.Action),
		zap.String("id", o.ID),
		zap.Error(err))
	return err
}

// done records a committed transition and publishes it.
func (e *Engine) done(o *Outcome, actorID primitive.ObjectID) *Outcome {
	o.Succeeded = true
	metrics.RecordTransition(o.Entity, o.Action, "ok", time.Since(o.start))

	data := map[string]string{}
	if o.GroupID != "" {
		data["group_id"] = o.GroupID
	}
	e.broker.Publish(broker.Message{
		Kind:     o.Entity + "." + o.Action,
		Entity:   o.Entity,
		EntityID: o.ID,
		ActorID:  actorID.Hex(),
		Data:     data,
	})
	e.log.Info("transition committed",
		zap.String("entity", o.Entity),
		zap.String("action", o.Action),
		zap.String("id", o.ID),
		zap.String("group_id", o.GroupID),
		zap.Int("notifications", o.NotificationsWritten),
		zap.Int("emails", o.EmailsSent),
		zap.Int("warnings", len(o.Warnings)))
	return o
}

// email dispatches one message. A failure is logged and recorded on o.
func (e *Engine) email(ctx context.Context, o *Outcome, key mailer.EndpointKey, p mailer.Payload) {
	if p.Recipient() == "" {
		o.warn("email %s skipped: no recipient address", key)
		return
	}
	if err := e.mailer.Dispatch(ctx, key, p); err != nil {
		o.EmailsFailed++
		o.warn("email %s: %v", key, err)
		e.log.Warn("email dispatch failed",
			zap.String("endpoint", string(key)),
			zap.String("entity", o.Entity),
			zap.String("id", o.ID),
			zap.Error(err))
		return
	}
	o.EmailsSent++
}

// legacy logs a stored status that was not a recognized spelling.
func (e *Engine) legacy(kind, raw string, known bool) {
	if !known {
		normalize.LegacyStatus(e.log, kind, raw)
	}
}

// reason cleans a rejection reason and rejects an empty one.
func reason(raw string) (string, error) {
	r := htmlsanitize.PlainText(normalize.Reason(raw), "")
	if r == "" {
		return "", apperr.Validation("a rejection reason is required")
	}
	return r, nil
}
