/*

This file contains the selection of the winning protocol from scored candidates.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/types"
)

var protocolSelectorLogger = logger.GetForComponent("protocol_selector")
var ErrNoCandidates = errors.New("no scored protocols to select from")

// SelectBestProtocol folds over the scored protocols and returns the highest score.
// Ties go to the lowest protocol id so the result does not depend on input order.
func SelectBestProtocol(scored []types.ProtocolScoreResult) (types.ProtocolScoreResult, error) {
	if len(scored) == 0 {
		return types.ProtocolScoreResult{}, ErrNoCandidates
	}

	for _, s := range scored {
		if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
			protocolSelectorLogger.Error().
				Int64("protocolID", s.ProtocolID).
				Float64("score", s.Score).
				Msg("Protocol has invalid score")
			return types.ProtocolScoreResult{}, fmt.Errorf("protocol %d has invalid score: %f", s.ProtocolID, s.Score)
		}
	}

	best := scored[0]
	for _, s := range scored[1:] {
		if beats(s, best) {
			best = s
		}
	}

	protocolSelectorLogger.Debug().
		Int64("protocolID", best.ProtocolID).
		Str("protocol", best.ProtocolName).
		Float64("score", best.Score).
		Int("candidates", len(scored)).
		Msg("Selected best protocol")

	return best, nil
}

// RankProtocolScores returns a copy sorted by score descending, then id ascending.
func RankProtocolScores(scored []types.ProtocolScoreResult) []types.ProtocolScoreResult {
	ranked := slices.Clone(scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return beats(ranked[i], ranked[j])
	})
	return ranked
}

func beats(a, b types.ProtocolScoreResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ProtocolID < b.ProtocolID
}
