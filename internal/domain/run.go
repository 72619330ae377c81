package domain

import "time"

// Stage run statuses.
const (
	RunSuccess   = "success"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// StageRun records one execution of one pipeline stage.
type StageRun struct {
	RunID      string
	Series     string
	Stage      string
	Status     string
	Rows       int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns FinishedAt - StartedAt.
func (r StageRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
