package optimizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/yieldvault/rebalancer/internal/types"
)

// SweepResult summarizes one EvaluateAll pass.
type SweepResult struct {
	Evaluated  int                      `json:"evaluated"`
	Rebalanced int                      `json:"rebalanced"`
	Failed     int                      `json:"failed"`
	Results    []types.EvaluationResult `json:"results"`
}

// EvaluateAll evaluates every auto-mode vault. Vaults are independent: a
// failed evaluation is logged and joined into the returned error while the
// rest of the sweep continues.
func (e *Engine) EvaluateAll(ctx context.Context) (SweepResult, error) {
	var sweep SweepResult

	vaults, err := e.repo.ListVaults(ctx)
	if err != nil {
		return sweep, fmt.Errorf("failed to list vaults: %w", err)
	}

	var errs []error
	for _, v := range vaults {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !v.AutoMode {
			continue
		}

		result, err := e.Evaluate(ctx, v.ID)
		sweep.Evaluated++
		if err != nil {
			sweep.Failed++
			e.logger.Error().Err(err).Int64("vaultId", v.ID).Msg("Vault evaluation failed")
			errs = append(errs, fmt.Errorf("vault %d: %w", v.ID, err))
			continue
		}
		if result.Rebalanced() {
			sweep.Rebalanced++
		}
		sweep.Results = append(sweep.Results, *result)
	}

	e.logger.Info().
		Int("vaults", len(vaults)).
		Int("evaluated", sweep.Evaluated).
		Int("rebalanced", sweep.Rebalanced).
		Int("failed", sweep.Failed).
		Msg("Evaluation sweep completed")
	return sweep, errors.Join(errs...)
}
