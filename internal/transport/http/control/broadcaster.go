package control

import (
	"sync"

	"market-state-lab/internal/task"
)

// Event types streamed on /progress.
const (
	EventSnapshot = "snapshot"
	EventCounting = "counting"
	EventCount    = "count"
	EventStart    = "start"
	EventEnd      = "end"
)

// Event is one progress notification.
type Event struct {
	Type      string          `json:"type"`
	Stage     string          `json:"stage,omitempty"`
	Step      int             `json:"step"`
	Total     int             `json:"total,omitempty"`
	Error     string          `json:"error,omitempty"`
	Snapshots []task.Snapshot `json:"snapshots,omitempty"`
}

// subscriberBuffer bounds the events queued per client. A slow client loses
// events rather than stalling the stage loop.
const subscriberBuffer = 256

// Broadcaster is a task.Progress that remembers the latest state of every stage
// and fans events out to subscribers.
type Broadcaster struct {
	tracker *task.Tracker

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster without subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{tracker: task.NewTracker(), subs: make(map[chan Event]struct{})}
}

var _ task.Progress = (*Broadcaster)(nil)

// Snapshots returns the latest state of every stage seen.
func (b *Broadcaster) Snapshots() []task.Snapshot { return b.tracker.Snapshots() }

// Subscribe registers a client. The returned function unsubscribes it and must be called.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Broadcaster) Counting(name string) {
	b.tracker.Counting(name)
	b.publish(Event{Type: EventCounting, Stage: name, Step: -1})
}

func (b *Broadcaster) StepCount(name string, total int) {
	b.tracker.StepCount(name, total)
	b.publish(Event{Type: EventCount, Stage: name, Step: -1, Total: total})
}

func (b *Broadcaster) StepStart(name string, step int, _ string) {
	b.tracker.StepStart(name, step, "")
	// Starts are not streamed; the end of the same step follows immediately.
}

func (b *Broadcaster) StepEnd(name string, step int, err error) {
	b.tracker.StepEnd(name, step, err)
	ev := Event{Type: EventEnd, Stage: name, Step: step}
	if err != nil {
		ev.Error = err.Error()
	}
	b.publish(ev)
}
