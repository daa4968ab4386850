package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yieldvault/rebalancer/internal/types"
)

type storedPolicy struct {
	id        int64
	name      string
	version   int
	active    bool
	activated time.Time
	params    types.PolicyParameters
}

// MemoryStore is an in-process Repository. Values are copied in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	tokens       map[string]types.Token
	protocols    map[int64]types.Protocol
	vaults       map[int64]types.Vault
	transactions []types.Transaction
	prices       []types.PricePoint
	decisions    []types.DecisionRecord
	policies     []storedPolicy

	nextProtocolID    int64
	nextVaultID       int64
	nextTransactionID int64
	nextPriceID       int64
	nextDecisionID    int64
	nextPolicyID      int64
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:    make(map[string]types.Token),
		protocols: make(map[int64]types.Protocol),
		vaults:    make(map[int64]types.Vault),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }

func copyProtocol(p types.Protocol) types.Protocol {
	p.SupportedTokens = append([]string(nil), p.SupportedTokens...)
	if p.AVS != nil {
		avs := *p.AVS
		p.AVS = &avs
	}
	return p
}

// Tokens

func (m *MemoryStore) ListTokens(ctx context.Context) ([]types.Token, error) {
	return m.listTokens(false), nil
}

func (m *MemoryStore) ListActiveTokens(ctx context.Context) ([]types.Token, error) {
	return m.listTokens(true), nil
}

func (m *MemoryStore) listTokens(activeOnly bool) []types.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *MemoryStore) GetToken(ctx context.Context, symbol string) (*types.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("token %q: %w", symbol, ErrNotFound)
	}
	return &t, nil
}

func (m *MemoryStore) CreateToken(ctx context.Context, token types.Token) (*types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Symbol] = token
	return &token, nil
}

// Protocols

func (m *MemoryStore) ListProtocols(ctx context.Context) ([]types.Protocol, error) {
	return m.listProtocols(false), nil
}

func (m *MemoryStore) ListActiveProtocols(ctx context.Context) ([]types.Protocol, error) {
	return m.listProtocols(true), nil
}

func (m *MemoryStore) listProtocols(activeOnly bool) []types.Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Protocol, 0, len(m.protocols))
	for _, p := range m.protocols {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, copyProtocol(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) GetProtocol(ctx context.Context, id int64) (*types.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.protocols[id]
	if !ok {
		return nil, fmt.Errorf("protocol %d: %w", id, ErrNotFound)
	}
	p = copyProtocol(p)
	return &p, nil
}

func (m *MemoryStore) CreateProtocol(ctx context.Context, p types.Protocol) (*types.Protocol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.LastUpdate.IsZero() {
		p.LastUpdate = time.Now().UTC()
	}
	m.nextProtocolID++
	p.ID = m.nextProtocolID
	m.protocols[p.ID] = copyProtocol(p)
	return &p, nil
}

func (m *MemoryStore) UpdateProtocol(ctx context.Context, id int64, update types.ProtocolUpdate) (*types.Protocol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.protocols[id]
	if !ok {
		return nil, fmt.Errorf("protocol %d: %w", id, ErrNotFound)
	}
	updated := update.Apply(copyProtocol(current))
	m.protocols[id] = copyProtocol(updated)
	return &updated, nil
}

func (m *MemoryStore) ToggleProtocol(ctx context.Context, id int64) (*types.Protocol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.protocols[id]
	if !ok {
		return nil, fmt.Errorf("protocol %d: %w", id, ErrNotFound)
	}
	current.Active = !current.Active
	m.protocols[id] = current
	out := copyProtocol(current)
	return &out, nil
}

// Vaults and transactions

func (m *MemoryStore) ListVaults(ctx context.Context) ([]types.Vault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Vault, 0, len(m.vaults))
	for _, v := range m.vaults {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetVault(ctx context.Context, id int64) (*types.Vault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vaults[id]
	if !ok {
		return nil, fmt.Errorf("vault %d: %w", id, ErrNotFound)
	}
	return &v, nil
}

func (m *MemoryStore) CreateVault(ctx context.Context, v types.Vault) (*types.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextVaultID++
	v.ID = m.nextVaultID
	m.vaults[v.ID] = v
	return &v, nil
}

func (m *MemoryStore) UpdateVault(ctx context.Context, id int64, update types.VaultUpdate) (*types.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.vaults[id]
	if !ok {
		return nil, fmt.Errorf("vault %d: %w", id, ErrNotFound)
	}
	updated := update.Apply(current)
	m.vaults[id] = updated
	return &updated, nil
}

func (m *MemoryStore) CommitRebalance(ctx context.Context, c RebalanceCommit) (*types.Vault, *types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.vaults[c.VaultID]
	if !ok {
		return nil, nil, fmt.Errorf("vault %d: %w", c.VaultID, ErrNotFound)
	}
	if current.Protocol != c.ExpectedProtocol {
		return nil, nil, fmt.Errorf("%w: vault %d is on %q, expected %q", ErrStaleVault, c.VaultID, current.Protocol, c.ExpectedProtocol)
	}

	m.nextTransactionID++
	txn := types.Transaction{
		ID:        m.nextTransactionID,
		VaultID:   c.VaultID,
		Kind:      types.TransactionKindRebalance,
		Amount:    c.Amount,
		GasCost:   c.GasCostUSD,
		Timestamp: c.Timestamp,
	}
	m.transactions = append(m.transactions, txn)

	current.Protocol = c.NewProtocol
	current.APY = c.NewAPY
	m.vaults[c.VaultID] = current
	return &current, &txn, nil
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, t types.Transaction) (*types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vaults[t.VaultID]; !ok {
		return nil, fmt.Errorf("vault %d: %w", t.VaultID, ErrNotFound)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	m.nextTransactionID++
	t.ID = m.nextTransactionID
	m.transactions = append(m.transactions, t)
	return &t, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, vaultID int64) ([]types.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Transaction
	for _, t := range m.transactions {
		if t.VaultID == vaultID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Prices

func (m *MemoryStore) CreatePrice(ctx context.Context, p types.PricePoint) (*types.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	m.nextPriceID++
	p.ID = m.nextPriceID
	m.prices = append(m.prices, p)
	return &p, nil
}

func (m *MemoryStore) ListPrices(ctx context.Context, asset string, since time.Time) ([]types.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.PricePoint
	for _, p := range m.prices {
		if p.Asset != asset || p.Timestamp.Before(since) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetLatestPrice(ctx context.Context, asset string) (*types.PricePoint, error) {
	points, err := m.ListPrices(ctx, asset, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("price for %q: %w", asset, ErrNotFound)
	}
	latest := points[len(points)-1]
	return &latest, nil
}

// Decisions

func (m *MemoryStore) RecordDecision(ctx context.Context, d types.DecisionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDecisionID++
	d.ID = m.nextDecisionID
	if d.Analysis != nil {
		a := *d.Analysis
		d.Analysis = &a
	}
	m.decisions = append(m.decisions, d)
	return d.ID, nil
}

func (m *MemoryStore) ListDecisions(ctx context.Context, vaultID int64, limit int) ([]types.DecisionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.DecisionRecord
	for _, d := range m.decisions {
		if d.VaultID == vaultID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EvaluatedAt.Equal(out[j].EvaluatedAt) {
			return out[i].EvaluatedAt.After(out[j].EvaluatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DecisionSummary(ctx context.Context) (*types.DecisionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := &types.DecisionSummary{NoChangeByReason: map[types.NoChangeReason]int{}}
	for _, d := range m.decisions {
		summary.TotalEvaluations++
		if d.Outcome == types.StateRebalancing {
			summary.Rebalances++
		} else {
			summary.NoChangeByReason[d.Reason]++
		}
		if summary.LastEvaluationAt == nil || d.EvaluatedAt.After(*summary.LastEvaluationAt) {
			t := d.EvaluatedAt
			summary.LastEvaluationAt = &t
		}
	}
	for _, t := range m.transactions {
		if t.Kind == types.TransactionKindRebalance {
			summary.TotalGasSpentUSD += t.GasCost
			summary.TotalRebalancedAmt += t.Amount
		}
	}
	return summary, nil
}

// Policy parameters

func (m *MemoryStore) SavePolicyParameters(ctx context.Context, params types.PolicyParameters, configName string, version int, makeActive bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if makeActive {
		for i := range m.policies {
			if m.policies[i].name == configName {
				m.policies[i].active = false
			}
		}
	}
	m.nextPolicyID++
	m.policies = append(m.policies, storedPolicy{
		id:        m.nextPolicyID,
		name:      configName,
		version:   version,
		active:    makeActive,
		activated: time.Now().UTC(),
		params:    clonePolicy(params),
	})
	return m.nextPolicyID, nil
}

func (m *MemoryStore) LoadActivePolicyParameters(ctx context.Context, configName string) (*types.PolicyParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.policies) - 1; i >= 0; i-- {
		p := m.policies[i]
		if p.name == configName && p.active {
			out := clonePolicy(p.params)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("no active policy parameters for config '%s': %w", configName, ErrNotFound)
}

func clonePolicy(p types.PolicyParameters) types.PolicyParameters {
	minBalance := make(map[types.TokenCategory]float64, len(p.MinBalance))
	for k, v := range p.MinBalance {
		minBalance[k] = v
	}
	thresholds := make(map[types.TokenCategory]float64, len(p.ThresholdMultiplier))
	for k, v := range p.ThresholdMultiplier {
		thresholds[k] = v
	}
	p.MinBalance = minBalance
	p.ThresholdMultiplier = thresholds
	return p
}
