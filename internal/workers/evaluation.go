package workers

import (
	"context"

	"github.com/yieldvault/rebalancer/internal/optimizer"
)

// Sweeper evaluates every auto-mode vault.
type Sweeper interface {
	EvaluateAll(ctx context.Context) (optimizer.SweepResult, error)
}

// EvaluationSweep runs the decision engine over all vaults on each tick.
type EvaluationSweep struct {
	engine Sweeper
}

func NewEvaluationSweep(engine Sweeper) *EvaluationSweep {
	return &EvaluationSweep{engine: engine}
}

func (s *EvaluationSweep) Name() string { return "evaluation_sweep" }

func (s *EvaluationSweep) Run(ctx context.Context) error {
	_, err := s.engine.EvaluateAll(ctx)
	return err
}
