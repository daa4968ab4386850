/*

This file contains the gas cost estimator for a protocol switch.

*/

package analyzer

import (
	sdkmath "cosmossdk.io/math"

	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

// gweiPerEth converts gwei to ETH.
const gweiPerEth = 1_000_000_000

// GasInput describes one protocol switch.
type GasInput struct {
	BaseGasUnits uint64  // token leg, from Token.BaseGasLimit
	GasOverhead  uint64  // protocol leg, from Protocol.GasOverhead
	GasPriceGwei float64 // current gas price
	EthPriceUSD  float64 // current ETH/USD, <= 0 when unknown
}

// GasEstimate is the fixed-point cost of a switch.
type GasEstimate struct {
	GasLimit     uint64
	GasPriceGwei sdkmath.LegacyDec
	EthPriceUSD  sdkmath.LegacyDec
	CostEth      sdkmath.LegacyDec
	CostUSD      sdkmath.LegacyDec
}

// Details returns the float view used in analysis payloads.
func (e GasEstimate) Details() types.GasDetails {
	return types.GasDetails{
		GasLimit:  e.GasLimit,
		GasPrice:  utils.MustDecToFloat64(e.GasPriceGwei),
		CostInEth: utils.MustDecToFloat64(e.CostEth),
	}
}

// CostUSDFloat returns the USD cost as float64.
func (e GasEstimate) CostUSDFloat() float64 {
	return utils.MustDecToFloat64(e.CostUSD)
}

// EstimateGasCost computes (base + overhead) × gwei × 1e-9 × ethUsd.
// It never fails: an unknown ETH price or gas price falls back to the policy defaults.
func EstimateGasCost(in GasInput, params types.PolicyParameters) GasEstimate {
	ethPrice := in.EthPriceUSD
	if ethPrice <= 0 || !utils.IsFinite(ethPrice) {
		scoreLogger.Debug().
			Float64("ethPriceUSD", ethPrice).
			Float64("defaultEthPriceUSD", params.DefaultEthPriceUSD).
			Msg("ETH price unknown, using default")
		ethPrice = params.DefaultEthPriceUSD
	}
	gasPrice := in.GasPriceGwei
	if gasPrice <= 0 || !utils.IsFinite(gasPrice) {
		gasPrice = params.DefaultGasPriceGwei
	}

	gasLimit := in.BaseGasUnits + in.GasOverhead
	gasPriceDec := utils.MustFloat64ToDec(gasPrice)
	ethPriceDec := utils.MustFloat64ToDec(ethPrice)

	costEth := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(gasLimit)).
		Mul(gasPriceDec).
		QuoInt64(gweiPerEth)

	return GasEstimate{
		GasLimit:     gasLimit,
		GasPriceGwei: gasPriceDec,
		EthPriceUSD:  ethPriceDec,
		CostEth:      costEth,
		CostUSD:      costEth.Mul(ethPriceDec),
	}
}
