// Package saga tracks side effects made at a payment provider during a
// multi-step workflow so they can be undone when a later step fails.
package saga

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type CompensateFunc func(ctx context.Context) error

type step struct {
	name       string
	compensate CompensateFunc
}

type Saga struct {
	log  *zap.Logger
	name string

	mu         sync.Mutex
	steps      []step
	rolledBack bool
}

func New(log *zap.Logger, name string) *Saga {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saga{log: log.With(zap.String("saga", name)), name: name}
}

// Record registers a completed step. compensate may be nil for steps that
// have nothing to undo.
func (s *Saga) Record(name string, compensate CompensateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{name: name, compensate: compensate})
}

// Completed lists recorded step names in execution order.
func (s *Saga) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.steps))
	for _, st := range s.steps {
		out = append(out, st.name)
	}
	return out
}

// Rollback runs compensations in reverse order. Every compensation is
// attempted even when an earlier one fails. A saga rolls back at most once.
func (s *Saga) Rollback(ctx context.Context) error {
	s.mu.Lock()
	if s.rolledBack {
		s.mu.Unlock()
		return nil
	}
	s.rolledBack = true
	steps := append([]step(nil), s.steps...)
	s.mu.Unlock()

	// the caller's context is usually already failing at this point
	ctx = context.WithoutCancel(ctx)

	var errs error
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx); err != nil {
			s.log.Error("compensation failed", zap.String("step", st.name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		s.log.Info("compensation applied", zap.String("step", st.name))
	}
	return errs
}
