package cascade

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Root names the kind of entity a cascade starts from.
type Root string

const (
	RootGroup   Root = "group"
	RootProject Root = "project"
	RootEvent   Root = "event"
	RootCompany Root = "company"
	RootPost    Root = "post"
)

// Receipt records what a cascade deleted and what it could not.
type Receipt struct {
	ID          string         `json:"id"`
	Root        Root           `json:"root"`
	RootID      string         `json:"root_id"`
	Counts      map[string]int `json:"counts"`
	Errors      []string       `json:"errors"`
	RootDeleted bool           `json:"root_deleted"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`

	// tally is shared by copies. It is nil on a receipt decoded from JSON.
	tally *tally
}

type tally struct {
	mu  sync.Mutex
	err error
}

// lock guards Counts and Errors while the cascade is running.
func (r *Receipt) lock() func() {
	if r.tally == nil {
		return func() {}
	}
	r.tally.mu.Lock()
	return r.tally.mu.Unlock
}

func newReceipt(root Root, rootID string) *Receipt {
	return &Receipt{
		ID:        uuid.NewString(),
		Root:      root,
		RootID:    rootID,
		Counts:    map[string]int{},
		Errors:    []string{},
		StartedAt: time.Now().UTC(),
		tally:     &tally{},
	}
}

func (r *Receipt) deleted(coll string) {
	defer r.lock()()
	r.Counts[coll]++
}

func (r *Receipt) fail(coll, id string, err error) {
	defer r.lock()()
	e := fmt.Errorf("%s/%s: %w", coll, id, err)
	if id == "" {
		e = fmt.Errorf("%s: %w", coll, err)
	}
	r.tally.err = multierr.Append(r.tally.err, e)
	r.Errors = append(r.Errors, e.Error())
}

// Partial reports whether any delete failed.
func (r *Receipt) Partial() bool {
	return r.Err() != nil
}

// Err returns the recorded failures combined, or nil. A decoded receipt
// rebuilds them from Errors.
func (r *Receipt) Err() error {
	defer r.lock()()
	if r.tally != nil {
		return r.tally.err
	}
	var errs error
	for _, e := range r.Errors {
		errs = multierr.Append(errs, errors.New(e))
	}
	return errs
}

// Total is the number of documents deleted across all collections.
func (r *Receipt) Total() int {
	defer r.lock()()
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// PartialFailure is returned alongside the receipt when a cascade finished
// but some deletes failed. It matches apperr.ErrPartialCascade.
type PartialFailure struct {
	Receipt *Receipt
}

func (e *PartialFailure) Error() string {
	errs := multierr.Errors(e.Receipt.Err())
	return fmt.Sprintf("partial cascade failure: %s %s: %d error(s), first: %v",
		e.Receipt.Root, e.Receipt.RootID, len(errs), first(errs))
}

func (e *PartialFailure) Unwrap() error { return apperr.ErrPartialCascade }

func first(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
