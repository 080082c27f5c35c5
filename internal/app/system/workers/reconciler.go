// internal/app/system/workers/reconciler.go
package workers

import (
	"context"
	"errors"
	"sync"

	companystore "github.com/dalemusser/collabhub/internal/app/store/companies"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	poststore "github.com/dalemusser/collabhub/internal/app/store/posts"
	"github.com/dalemusser/collabhub/internal/app/system/auditlog"
	"github.com/dalemusser/collabhub/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Run when a pass is in progress.
var ErrAlreadyRunning = errors.New("reconciler: a pass is already running")

// Report summarizes one reconciliation pass.
type Report struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
	// Pending counts drift seen for the first time. It is repaired only if
	// the next pass finds the same values.
	Pending int `json:"pending"`
	// Skipped counts documents whose counter moved while being checked;
	// the next pass picks them up.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Reconciler recomputes denormalized counters from the rows they count:
// group and company member_count from active memberships, and post
// comment_count from comments.
//
// Writers change the row first and the counter second, so a pass can land
// between the two and see drift that the in-flight increment is about to
// close. Drift is therefore only repaired when two consecutive passes
// observe the same stored and actual values, and the repair is a
// compare-and-set on the stored value.
type Reconciler struct {
	es        entitystore.Store
	groups    *groupstore.Store
	members   *membershipstore.Store
	companies *companystore.Store
	posts     *poststore.Store
	audit     *auditlog.Logger
	log       *zap.Logger

	running sync.Mutex
	// suspects holds drift seen by the previous pass. Guarded by running.
	suspects map[driftKey]drift
}

type driftKey struct {
	coll  string
	field string
	id    primitive.ObjectID
}

type drift struct {
	observed int64
	actual   int64
}

func NewReconciler(es entitystore.Store, audit *auditlog.Logger, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		es:        es,
		groups:    groupstore.New(es),
		members:   membershipstore.New(es),
		companies: companystore.New(es),
		posts:     poststore.New(es),
		audit:     audit,
		log:       logger,
	}
}

// counters is the raw stored form, read without normalization so a
// negative value can be matched and repaired.
type counters struct {
	MemberCount  int64 `bson:"member_count"`
	CommentCount int64 `bson:"comment_count"`
}

type check struct {
	coll   string
	field  string
	ids    func(context.Context) ([]primitive.ObjectID, error)
	actual func(context.Context, primitive.ObjectID) (int64, error)
	stored func(counters) int64
	repair func(ctx context.Context, id primitive.ObjectID, observed, actual int64) error
}

// Run makes one pass over every counted document. Per-document failures are
// logged and aggregated into the returned error; the pass continues.
func (w *Reconciler) Run(ctx context.Context) (Report, error) {
	if !w.running.TryLock() {
		return Report{}, ErrAlreadyRunning
	}
	defer w.running.Unlock()

	checks := []check{
		{
			coll: entitystore.Groups, field: "member_count",
			ids:    w.groups.ListIDs,
			actual: w.members.CountActive,
			stored: func(c counters) int64 { return c.MemberCount },
			repair: w.groups.RepairMemberCount,
		},
		{
			coll: entitystore.Companies, field: "member_count",
			ids:    w.companies.ListIDs,
			actual: w.companies.CountActiveMembers,
			stored: func(c counters) int64 { return c.MemberCount },
			repair: w.companies.RepairMemberCount,
		},
		{
			coll: entitystore.Posts, field: "comment_count",
			ids:    w.posts.ListIDs,
			actual: w.posts.CountComments,
			stored: func(c counters) int64 { return c.CommentCount },
			repair: w.posts.RepairCommentCount,
		},
	}

	var rep Report
	var errs error
	seen := make(map[driftKey]drift)
	for _, c := range checks {
		errs = multierr.Append(errs, w.runCheck(ctx, c, seen, &rep))
		if ctx.Err() != nil {
			break
		}
	}
	w.suspects = seen

	w.log.Info("counter reconciliation finished",
		zap.Int("checked", rep.Checked),
		zap.Int("repaired", rep.Repaired),
		zap.Int("pending", rep.Pending),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed))
	return rep, errs
}

// stored reads the raw counter for one document.
func (w *Reconciler) stored(ctx context.Context, c check, id primitive.ObjectID) (int64, error) {
	var raw counters
	if err := w.es.Get(ctx, c.coll, id, &raw); err != nil {
		return 0, err
	}
	return c.stored(raw), nil
}

func (w *Reconciler) runCheck(ctx context.Context, c check, seen map[driftKey]drift, rep *Report) error {
	ids, err := c.ids(ctx)
	if err != nil {
		rep.Failed++
		w.log.Error("reconcile: listing ids failed", zap.String("collection", c.coll), zap.Error(err))
		return err
	}

	var errs error
	for _, id := range ids {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		rep.Checked++

		observed, err := w.stored(ctx, c, id)
		if err != nil {
			if errors.Is(err, entitystore.ErrNotFound) {
				continue
			}
			rep.Failed++
			errs = multierr.Append(errs, err)
			continue
		}
		actual, err := c.actual(ctx, id)
		if err != nil {
			rep.Failed++
			errs = multierr.Append(errs, err)
			continue
		}
		if observed == actual {
			continue
		}
		again, err := w.stored(ctx, c, id)
		if err != nil || again != observed {
			rep.Skipped++
			continue
		}

		key := driftKey{coll: c.coll, field: c.field, id: id}
		d := drift{observed: observed, actual: actual}
		if prev, ok := w.suspects[key]; !ok || prev != d {
			seen[key] = d
			rep.Pending++
			w.log.Debug("counter drift pending confirmation",
				zap.String("collection", c.coll),
				zap.String("id", id.Hex()),
				zap.String("field", c.field),
				zap.Int64("stored", observed),
				zap.Int64("actual", actual))
			continue
		}

		err = c.repair(ctx, id, observed, actual)
		switch {
		case err == nil:
			rep.Repaired++
			metrics.RecordRepair(c.coll, c.field)
			w.audit.CounterRepaired(ctx, c.coll, id, c.field, observed, actual)
			w.log.Warn("repaired counter drift",
				zap.String("collection", c.coll),
				zap.String("id", id.Hex()),
				zap.String("field", c.field),
				zap.Int64("was", observed),
				zap.Int64("now", actual))
		case errors.Is(err, entitystore.ErrConflict), errors.Is(err, entitystore.ErrNotFound):
			rep.Skipped++
		default:
			rep.Failed++
			errs = multierr.Append(errs, err)
			w.log.Error("reconcile: repair failed",
				zap.String("collection", c.coll),
				zap.String("id", id.Hex()),
				zap.Error(err))
		}
	}
	return errs
}
