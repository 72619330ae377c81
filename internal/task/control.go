package task

import (
	"context"
	"sync"
)

// Control pauses and resumes loops between steps. The zero value is not usable;
// use NewControl.
type Control struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

// NewControl creates a running control.
func NewControl() *Control {
	c := &Control{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Pause makes loops block at their next step boundary.
func (c *Control) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume releases paused loops.
func (c *Control) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Paused reports whether the control is paused.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Wait blocks while paused. It returns ctx.Err() if ctx is done first.
func (c *Control) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.paused {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return ctx.Err()
}
