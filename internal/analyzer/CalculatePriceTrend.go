package analyzer

import (
	"errors"
	"slices"

	"github.com/yieldvault/rebalancer/internal/types"
)

// ErrInsufficientData indicates fewer than two price points in the window.
var ErrInsufficientData = errors.New("insufficient data points to calculate price trend")
var ErrInvalidPriceData = errors.New("oldest price in window is not positive")

// CalculatePriceTrend returns (newest − oldest) / oldest over the given points.
// The input order does not matter and the slice is not modified.
func CalculatePriceTrend(prices []types.PricePoint) (float64, error) {
	if len(prices) < 2 {
		return 0, ErrInsufficientData
	}

	oldest := slices.MinFunc(prices, func(a, b types.PricePoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	newest := slices.MaxFunc(prices, func(a, b types.PricePoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	if oldest.Price <= 0 {
		return 0, ErrInvalidPriceData
	}
	return (newest.Price - oldest.Price) / oldest.Price, nil
}
