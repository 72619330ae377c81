package logging

import (
	"go.uber.org/zap"

	"market-state-lab/internal/task"
)

// Progress logs loop progress: totals, every Every-th step and failures.
type Progress struct {
	logger *zap.SugaredLogger
	every  int
	totals map[string]int
}

// NewProgress creates a logging progress receiver. every <= 0 logs only totals
// and failures. It is not safe for concurrent loops.
func NewProgress(l *zap.SugaredLogger, every int) *Progress {
	return &Progress{logger: OrNop(l), every: every, totals: make(map[string]int)}
}

var _ task.Progress = (*Progress)(nil)

func (p *Progress) Counting(name string) {
	p.logger.Debugw("counting", "stage", name)
}

func (p *Progress) StepCount(name string, total int) {
	p.totals[name] = total
	p.logger.Infow("steps counted", "stage", name, "total", total)
}

func (p *Progress) StepStart(string, int, string) {}

func (p *Progress) StepEnd(name string, step int, err error) {
	if err != nil {
		p.logger.Warnw("step failed", "stage", name, "step", step, "error", err)
		return
	}
	if p.every > 0 && (step+1)%p.every == 0 {
		p.logger.Infow("progress", "stage", name, "done", step+1, "total", p.totals[name])
	}
}
