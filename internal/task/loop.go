package task

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrCancelled is returned when a loop stops because its context was cancelled.
var ErrCancelled = errors.New("task cancelled")

// StepError reports the step at which a loop failed.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %d: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Loop runs numbered steps one at a time.
type Loop struct {
	Progress Progress
	Control  *Control
}

// NewLoop creates a loop. Nil arguments fall back to Nop and a running Control.
func NewLoop(p Progress, c *Control) *Loop {
	if p == nil {
		p = Nop{}
	}
	if c == nil {
		c = NewControl()
	}
	return &Loop{Progress: p, Control: c}
}

// Run calls fn for steps 0..total-1. Between steps it checks for cancellation,
// blocks while paused and yields the processor. A cancelled loop returns an error
// wrapping both ErrCancelled and the context error; a failing step returns a
// *StepError wrapping the cause.
func (l *Loop) Run(ctx context.Context, name string, total int, fn func(step int) error) error {
	l.Progress.StepCount(name, total)
	for step := 0; step < total; step++ {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step, Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
		}
		if err := l.Control.Wait(ctx); err != nil {
			return &StepError{Step: step, Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
		}

		l.Progress.StepStart(name, step, "")
		err := fn(step)
		l.Progress.StepEnd(name, step, err)
		if err != nil {
			return &StepError{Step: step, Err: err}
		}
		runtime.Gosched()
	}
	return nil
}

// Count announces that name is counting its steps.
func (l *Loop) Count(name string) {
	l.Progress.Counting(name)
}
