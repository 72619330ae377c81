package orchestrator

import (
	"errors"
	"fmt"

	"market-state-lab/internal/task"
)

// ErrUnknownStage is returned by RunStage for a name outside Stages.
var ErrUnknownStage = errors.New("unknown stage")

// StageError reports the stage and source index at which a run stopped.
// Index is -1 when the failure happened outside the row loop.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed at index %d: %v", e.Stage, e.Index, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageError wraps err for stage, lifting the step index out of a loop failure.
func stageError(stage string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	var step *task.StepError
	if errors.As(err, &step) {
		return &StageError{Stage: stage, Index: step.Step, Err: step.Err}
	}
	return &StageError{Stage: stage, Index: -1, Err: err}
}
