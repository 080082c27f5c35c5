// Package fanout writes in-app notifications to computed audiences.
//
// Each notification carries a dedupe key built from the transition key and
// the recipient. The key is unique in the store, so re-running a fan-out
// after a crash or retry writes nothing twice.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	companystore "github.com/dalemusser/collabhub/internal/app/store/companies"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	notificationstore "github.com/dalemusser/collabhub/internal/app/store/notifications"
	projectstore "github.com/dalemusser/collabhub/internal/app/store/projects"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/metrics"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Event is one notification to send to an audience.
type Event struct {
	Type models.NotificationType
	// Key identifies the transition, e.g. "project_approved:<id>".
	Key     string
	Title   string
	Related models.RelatedIDs
	// Subject, when set, is the person the message is about. Otherwise
	// each message is addressed using its recipient's name.
	Subject *Person
	Message func(name string) string
}

// Person identifies someone a message can name.
type Person struct {
	UserID primitive.ObjectID
	Email  string
	Name   string
}

// Result summarizes one Notify call. Err aggregates the failures that were
// logged; it is informational and never means the transition failed.
type Result struct {
	Recipients int
	Written    int
	Duplicate  int
	Failed     int
	Err        error
}

type recipient struct {
	userID primitive.ObjectID
	email  string
	name   string
}

func (r recipient) key() string {
	return models.MemberKey(r.userID, r.email)
}

// Fanout resolves audiences and writes notifications.
type Fanout struct {
	notifications *notificationstore.Store
	members       *membershipstore.Store
	companies     *companystore.Store
	projects      *projectstore.Store
	users         *userstore.Store
	log           *zap.Logger
	parallelism   int
}

func New(es entitystore.Store, log *zap.Logger) *Fanout {
	return &Fanout{
		notifications: notificationstore.New(es),
		members:       membershipstore.New(es),
		companies:     companystore.New(es),
		projects:      projectstore.New(es),
		users:         userstore.New(es),
		log:           log,
		parallelism:   8,
	}
}

// Notify writes ev to every recipient in aud except exclude. It never
// returns an error; problems are logged and reported in the Result.
func (f *Fanout) Notify(ctx context.Context, ev Event, aud Audience, exclude primitive.ObjectID) Result {
	var res Result

	recips, err := f.resolve(ctx, aud)
	if err != nil {
		f.log.Warn("fanout: audience resolution failed",
			zap.String("type", string(ev.Type)),
			zap.String("audience", aud.String()),
			zap.Error(err))
		res.Failed = 1
		res.Err = fmt.Errorf("resolve %s: %w", aud, err)
		metrics.RecordNotifications(string(ev.Type), 0, 0, 1)
		return res
	}

	recips = f.withNames(ctx, dedupe(recips, exclude), aud.fallback())
	res.Recipients = len(recips)

	subject := ""
	if ev.Subject != nil {
		subject = f.personName(ctx, *ev.Subject, aud.fallback())
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(f.parallelism)
	now := time.Now().UTC()
	for _, r := range recips {
		g.Go(func() error {
			err := f.write(ctx, ev, r, subject, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Written++
			case errors.Is(err, notificationstore.ErrAlreadyDelivered):
				res.Duplicate++
			default:
				res.Failed++
				res.Err = multierr.Append(res.Err, fmt.Errorf("%s: %w", r.key(), err))
				f.log.Warn("fanout: notification write failed",
					zap.String("type", string(ev.Type)),
					zap.String("recipient", r.key()),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.RecordNotifications(string(ev.Type), res.Written, res.Duplicate, res.Failed)
	f.log.Debug("fanout complete",
		zap.String("type", string(ev.Type)),
		zap.String("key", ev.Key),
		zap.Int("recipients", res.Recipients),
		zap.Int("written", res.Written),
		zap.Int("duplicate", res.Duplicate),
		zap.Int("failed", res.Failed))
	return res
}

func (f *Fanout) write(ctx context.Context, ev Event, r recipient, subject string, now time.Time) error {
	name := subject
	if name == "" {
		name = r.name
	}
	n := models.Notification{
		Type:       ev.Type,
		Title:      ev.Title,
		RelatedIDs: ev.Related,
		DedupeKey:  ev.Key + ":" + r.key(),
		CreatedAt:  now,
	}
	if ev.Message != nil {
		n.Message = ev.Message(name)
	}
	if !r.userID.IsZero() {
		uid := r.userID
		n.UserID = &uid
	} else {
		n.RecipientEmail = r.email
	}
	_, err := f.notifications.Insert(ctx, n)
	return err
}

func (f *Fanout) resolve(ctx context.Context, aud Audience) ([]recipient, error) {
	switch aud.kind {
	case kindGroupMembers, kindGroupAdmins:
		list := f.members.ListActive
		if aud.kind == kindGroupAdmins {
			list = f.members.ListAdmins
		}
		rows, err := list(ctx, aud.id)
		if err != nil {
			return nil, err
		}
		out := make([]recipient, 0, len(rows))
		for _, m := range rows {
			out = append(out, recipient{userID: m.UserID, email: m.UserEmail, name: m.DisplayName})
		}
		return out, nil

	case kindCompanyMembers:
		rows, err := f.companies.ListActiveMembers(ctx, aud.id)
		if err != nil {
			return nil, err
		}
		out := make([]recipient, 0, len(rows))
		for _, m := range rows {
			out = append(out, recipient{userID: m.UserID, email: m.UserEmail, name: m.DisplayName})
		}
		return out, nil

	case kindUser:
		return []recipient{{userID: aud.id}}, nil

	case kindEmail:
		email := normalize.Email(aud.email)
		if email == "" {
			return nil, nil
		}
		r := recipient{email: email, name: aud.name}
		if u, err := f.users.GetByEmail(ctx, email); err == nil {
			r.userID = u.ID
		} else if !errors.Is(err, entitystore.ErrNotFound) {
			return nil, err
		}
		return []recipient{r}, nil

	case kindProjectOwners:
		projects, err := f.projects.ListByIDs(ctx, aud.projectIDs)
		if err != nil {
			return nil, err
		}
		out := make([]recipient, 0, len(projects))
		for _, p := range projects {
			out = append(out, recipient{userID: p.OwnerUserID, email: p.ContactEmail, name: p.ContactName})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown audience %d", aud.kind)
}

// dedupe drops the excluded user and repeated recipients, keeping order.
func dedupe(in []recipient, exclude primitive.ObjectID) []recipient {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, r := range in {
		if !exclude.IsZero() && r.userID == exclude {
			continue
		}
		k := r.key()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// withNames resolves each recipient's display name, loading user records in
// one query. A lookup failure falls back to what the audience row carried.
func (f *Fanout) withNames(ctx context.Context, recips []recipient, fallback string) []recipient {
	var ids []primitive.ObjectID
	for _, r := range recips {
		if !r.userID.IsZero() {
			ids = append(ids, r.userID)
		}
	}
	users, err := f.users.ListByIDs(ctx, ids)
	if err != nil {
		f.log.Debug("fanout: user lookup failed, using fallback names", zap.Error(err))
		users = nil
	}
	for i, r := range recips {
		var u *models.User
		if found, ok := users[r.userID]; ok {
			u = &found
			if r.email == "" {
				recips[i].email = found.Email
			}
		}
		recips[i].name = DisplayName(u, r.name, recips[i].email, fallback)
	}
	return recips
}

func (f *Fanout) personName(ctx context.Context, p Person, fallback string) string {
	var u *models.User
	if !p.UserID.IsZero() {
		if found, err := f.users.GetByID(ctx, p.UserID); err == nil {
			u = &found
		}
	}
	return DisplayName(u, p.Name, p.Email, fallback)
}
