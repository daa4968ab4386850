/*

This file contains the token reference data used to classify vaults and estimate gas.

*/

package types

// TokenCategory drives the per-category balance floor and profitability multiplier.
type TokenCategory string

const (
	TokenCategoryStablecoin TokenCategory = "stablecoin"
	TokenCategoryLSD        TokenCategory = "lsd"
	TokenCategoryGovernance TokenCategory = "governance"
	TokenCategoryOther      TokenCategory = "other"
)

// Valid reports whether c is one of the known categories.
func (c TokenCategory) Valid() bool {
	switch c {
	case TokenCategoryStablecoin, TokenCategoryLSD, TokenCategoryGovernance, TokenCategoryOther:
		return true
	}
	return false
}

type Token struct {
	Symbol       string        `json:"symbol" db:"symbol"`                 // e.g., "USDC"
	Name         string        `json:"name" db:"name"`                     // e.g., "USD Coin"
	Category     TokenCategory `json:"category" db:"category"`             // e.g., "stablecoin"
	Decimals     int           `json:"decimals" db:"decimals"`             // e.g., 6
	BaseGasLimit uint64        `json:"baseGasLimit" db:"base_gas_limit"` // gas units for the token leg of a switch
	Active       bool          `json:"active" db:"active"`
}
