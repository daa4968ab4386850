package state

import (
	"context"
	"errors"
	"time"

	"github.com/yieldvault/rebalancer/internal/types"
)

var (
	// ErrNotFound is returned when a vault, token, protocol or policy does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleVault is returned when a vault changed protocol between evaluation and commit.
	ErrStaleVault = errors.New("vault changed since evaluation")
	// ErrNotInitialized is returned by a store whose connection is closed or missing.
	ErrNotInitialized = errors.New("database not initialized")
)

type TokenStore interface {
	ListTokens(ctx context.Context) ([]types.Token, error)
	ListActiveTokens(ctx context.Context) ([]types.Token, error)
	GetToken(ctx context.Context, symbol string) (*types.Token, error)
	CreateToken(ctx context.Context, token types.Token) (*types.Token, error)
}

type ProtocolStore interface {
	ListProtocols(ctx context.Context) ([]types.Protocol, error)
	ListActiveProtocols(ctx context.Context) ([]types.Protocol, error)
	GetProtocol(ctx context.Context, id int64) (*types.Protocol, error)
	CreateProtocol(ctx context.Context, protocol types.Protocol) (*types.Protocol, error)
	UpdateProtocol(ctx context.Context, id int64, update types.ProtocolUpdate) (*types.Protocol, error)
	ToggleProtocol(ctx context.Context, id int64) (*types.Protocol, error)
}

type VaultStore interface {
	ListVaults(ctx context.Context) ([]types.Vault, error)
	GetVault(ctx context.Context, id int64) (*types.Vault, error)
	CreateVault(ctx context.Context, vault types.Vault) (*types.Vault, error)
	UpdateVault(ctx context.Context, id int64, update types.VaultUpdate) (*types.Vault, error)
	// CommitRebalance writes the rebalance transaction and the vault switch as one unit.
	CommitRebalance(ctx context.Context, commit RebalanceCommit) (*types.Vault, *types.Transaction, error)
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx types.Transaction) (*types.Transaction, error)
	// ListTransactions returns a vault's transactions, newest first.
	ListTransactions(ctx context.Context, vaultID int64) ([]types.Transaction, error)
}

type PriceStore interface {
	CreatePrice(ctx context.Context, point types.PricePoint) (*types.PricePoint, error)
	// ListPrices returns points at or after since, oldest first. A zero since returns all points.
	ListPrices(ctx context.Context, asset string, since time.Time) ([]types.PricePoint, error)
	GetLatestPrice(ctx context.Context, asset string) (*types.PricePoint, error)
}

type DecisionStore interface {
	RecordDecision(ctx context.Context, record types.DecisionRecord) (int64, error)
	// ListDecisions returns a vault's decisions, newest first.
	ListDecisions(ctx context.Context, vaultID int64, limit int) ([]types.DecisionRecord, error)
	DecisionSummary(ctx context.Context) (*types.DecisionSummary, error)
}

type PolicyStore interface {
	SavePolicyParameters(ctx context.Context, params types.PolicyParameters, configName string, version int, makeActive bool) (int64, error)
	LoadActivePolicyParameters(ctx context.Context, configName string) (*types.PolicyParameters, error)
}

// Repository is the full persistence surface used by the service.
type Repository interface {
	TokenStore
	ProtocolStore
	VaultStore
	TransactionStore
	PriceStore
	DecisionStore
	PolicyStore
	Ping(ctx context.Context) error
	Close() error
}

// RebalanceCommit describes one executed rebalance.
type RebalanceCommit struct {
	VaultID          int64
	ExpectedProtocol string // protocol the vault was evaluated on
	NewProtocol      string
	NewAPY           float64
	Amount           float64
	GasCostUSD       float64
	Timestamp        time.Time
}
