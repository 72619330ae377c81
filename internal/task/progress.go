// Package task runs a stage as a sequential, cancellable, pausable loop and reports
// its progress.
package task

import "sync"

// Progress receives the lifecycle of one loop.
type Progress interface {
	// Counting is called before the total is known.
	Counting(name string)
	// StepCount announces the pre-counted total.
	StepCount(name string, total int)
	// StepStart is called before step runs.
	StepStart(name string, step int, msg string)
	// StepEnd is called after step finished, successfully or not.
	StepEnd(name string, step int, err error)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Counting(string)               {}
func (Nop) StepCount(string, int)         {}
func (Nop) StepStart(string, int, string) {}
func (Nop) StepEnd(string, int, error)    {}

// Multi fans events out to several receivers in order.
type Multi []Progress

func (m Multi) Counting(name string) {
	for _, p := range m {
		p.Counting(name)
	}
}

func (m Multi) StepCount(name string, total int) {
	for _, p := range m {
		p.StepCount(name, total)
	}
}

func (m Multi) StepStart(name string, step int, msg string) {
	for _, p := range m {
		p.StepStart(name, step, msg)
	}
}

func (m Multi) StepEnd(name string, step int, err error) {
	for _, p := range m {
		p.StepEnd(name, step, err)
	}
}

// Snapshot is the last known state of a loop.
type Snapshot struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
	Done  int    `json:"done"`
	Step  int    `json:"step"`
	Err   string `json:"error,omitempty"`
}

// Tracker remembers the latest Snapshot of every loop it has seen.
type Tracker struct {
	mu    sync.RWMutex
	order []string
	loops map[string]*Snapshot
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{loops: make(map[string]*Snapshot)}
}

func (t *Tracker) get(name string) *Snapshot {
	s, ok := t.loops[name]
	if !ok {
		s = &Snapshot{Name: name, Step: -1}
		t.loops[name] = s
		t.order = append(t.order, name)
	}
	return s
}

func (t *Tracker) Counting(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(name)
	s.Total, s.Done, s.Step, s.Err = 0, 0, -1, ""
}

func (t *Tracker) StepCount(name string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(name).Total = total
}

func (t *Tracker) StepStart(name string, step int, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(name).Step = step
}

func (t *Tracker) StepEnd(name string, step int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(name)
	if err != nil {
		s.Err = err.Error()
		return
	}
	s.Done = step + 1
}

// Snapshots returns every loop in first-seen order.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Snapshot, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, *t.loops[n])
	}
	return out
}
