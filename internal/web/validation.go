package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var errInvalidRequest = errors.New("invalid request")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

func checkNonNegative(field string, v float64) error {
	if !utils.IsFinite(v) || v < 0 {
		return invalidf("%s must be a non-negative number", field)
	}
	return nil
}

func checkRange(field string, v, lo, hi float64) error {
	if !utils.IsFinite(v) || v < lo || v > hi {
		return invalidf("%s must be between %g and %g", field, lo, hi)
	}
	return nil
}

func validateAVSMetrics(m *types.AVSMetrics) error {
	if m == nil {
		return nil
	}
	return errors.Join(
		checkRange("avs.slashingRisk", m.SlashingRisk, 0, 1),
		checkRange("avs.securityScore", m.SecurityScore, 0, 100),
		checkRange("avs.avgUptimePercent", m.AvgUptimePercent, 0, 100),
		checkNonNegativeInt("avs.nodeCount", m.NodeCount),
		checkRiskCategory(m.RiskCategory),
	)
}

func checkNonNegativeInt(field string, v int) error {
	if v < 0 {
		return invalidf("%s cannot be negative", field)
	}
	return nil
}

func checkRiskCategory(c types.RiskCategory) error {
	switch c {
	case "", types.RiskCategoryLow, types.RiskCategoryMedium, types.RiskCategoryHigh:
		return nil
	}
	return invalidf("unknown risk category %q", c)
}

func validateNewProtocol(p *types.Protocol) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Kind == "" {
		p.Kind = types.ProtocolKindOther
	}
	var errs []error
	if p.Name == "" {
		errs = append(errs, invalidf("name is required"))
	}
	if !p.Kind.Valid() {
		errs = append(errs, invalidf("unknown protocol type %q", p.Kind))
	}
	if len(p.SupportedTokens) == 0 {
		errs = append(errs, invalidf("supportedTokens cannot be empty"))
	}
	errs = append(errs,
		checkNonNegative("apy", p.APY),
		checkNonNegative("tvl", p.TVL),
		checkRange("healthScore", p.HealthScore, 0, 100),
		validateAVSMetrics(p.AVS),
	)
	if p.Kind == types.ProtocolKindAVS && p.AVS == nil {
		errs = append(errs, invalidf("avs metrics are required for avs protocols"))
	}
	if p.Kind != types.ProtocolKindAVS && p.AVS != nil {
		errs = append(errs, invalidf("avs metrics are only allowed for avs protocols"))
	}
	return errors.Join(errs...)
}

func validateProtocolUpdate(u *types.ProtocolUpdate) error {
	var errs []error
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		errs = append(errs, invalidf("name cannot be empty"))
	}
	if u.APY != nil {
		errs = append(errs, checkNonNegative("apy", *u.APY))
	}
	if u.TVL != nil {
		errs = append(errs, checkNonNegative("tvl", *u.TVL))
	}
	if u.HealthScore != nil {
		errs = append(errs, checkRange("healthScore", *u.HealthScore, 0, 100))
	}
	if u.TVLChange24h != nil && !utils.IsFinite(*u.TVLChange24h) {
		errs = append(errs, invalidf("tvlChange24h must be finite"))
	}
	if u.TVLChange7d != nil && !utils.IsFinite(*u.TVLChange7d) {
		errs = append(errs, invalidf("tvlChange7d must be finite"))
	}
	errs = append(errs, validateAVSMetrics(u.AVS))
	return errors.Join(errs...)
}

func validateNewVault(v *types.Vault) error {
	v.Name = strings.TrimSpace(v.Name)
	var errs []error
	if v.Name == "" {
		errs = append(errs, invalidf("name is required"))
	}
	if v.Token == "" {
		errs = append(errs, invalidf("token is required"))
	}
	if v.Protocol == "" {
		errs = append(errs, invalidf("protocol is required"))
	}
	errs = append(errs, checkNonNegative("balance", v.Balance), checkNonNegative("apy", v.APY))
	return errors.Join(errs...)
}

func validateVaultUpdate(u *types.VaultUpdate) error {
	var errs []error
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		errs = append(errs, invalidf("name cannot be empty"))
	}
	if u.Token != nil && *u.Token == "" {
		errs = append(errs, invalidf("token cannot be empty"))
	}
	if u.Protocol != nil && *u.Protocol == "" {
		errs = append(errs, invalidf("protocol cannot be empty"))
	}
	if u.Balance != nil {
		errs = append(errs, checkNonNegative("balance", *u.Balance))
	}
	if u.APY != nil {
		errs = append(errs, checkNonNegative("apy", *u.APY))
	}
	return errors.Join(errs...)
}

func validateTransaction(t *types.Transaction) error {
	var errs []error
	if t.VaultID <= 0 {
		errs = append(errs, invalidf("vaultId is required"))
	}
	if !t.Kind.Valid() {
		errs = append(errs, invalidf("unknown transaction type %q", t.Kind))
	}
	errs = append(errs, checkNonNegative("amount", t.Amount), checkNonNegative("gasCost", t.GasCost))
	return errors.Join(errs...)
}

func validatePreference(p *types.StrategyPreference) error {
	return errors.Join(
		checkRange("riskTolerance", p.RiskTolerance, 0, 1),
		checkRange("yieldPreference", p.YieldPreference, 0, 1),
		checkRange("securityPreference", p.SecurityPreference, 0, 1),
	)
}
