package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

type undoStep struct {
	name string
	fn   func(context.Context) error
}

// rollback collects undo steps for writes made before a commit point.
type rollback struct {
	steps []undoStep
}

func (r *rollback) add(name string, fn func(context.Context) error) {
	r.steps = append(r.steps, undoStep{name: name, fn: fn})
}

// run undoes every recorded step, newest first. It keeps going past a
// failed step and returns all failures combined.
func (r *rollback) run(ctx context.Context) error {
	var err error
	for i := len(r.steps) - 1; i >= 0; i-- {
		s := r.steps[i]
		if serr := s.fn(ctx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.name, serr))
		}
	}
	r.steps = nil
	return err
}
