package types

import "time"

type Vault struct {
	ID       int64   `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Balance  float64 `json:"balance" db:"balance"`
	Token    string  `json:"token" db:"token"`       // token symbol
	Protocol string  `json:"protocol" db:"protocol"` // current protocol name
	APY      float64 `json:"apy" db:"apy"`
	AutoMode bool    `json:"autoMode" db:"auto_mode"`
}

// VaultUpdate is a partial update; nil fields are left untouched.
type VaultUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Balance  *float64 `json:"balance,omitempty"`
	Token    *string  `json:"token,omitempty"`
	Protocol *string  `json:"protocol,omitempty"`
	APY      *float64 `json:"apy,omitempty"`
	AutoMode *bool    `json:"autoMode,omitempty"`
}

func (u VaultUpdate) Apply(v Vault) Vault {
	if u.Name != nil {
		v.Name = *u.Name
	}
	if u.Balance != nil {
		v.Balance = *u.Balance
	}
	if u.Token != nil {
		v.Token = *u.Token
	}
	if u.Protocol != nil {
		v.Protocol = *u.Protocol
	}
	if u.APY != nil {
		v.APY = *u.APY
	}
	if u.AutoMode != nil {
		v.AutoMode = *u.AutoMode
	}
	return v
}

type TransactionKind string

const (
	TransactionKindDeposit   TransactionKind = "deposit"
	TransactionKindWithdraw  TransactionKind = "withdraw"
	TransactionKindRebalance TransactionKind = "rebalance"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindWithdraw, TransactionKindRebalance:
		return true
	}
	return false
}

// Transaction is an append-only audit record.
type Transaction struct {
	ID        int64           `json:"id" db:"id"`
	VaultID   int64           `json:"vaultId" db:"vault_id"`
	Kind      TransactionKind `json:"type" db:"kind"`
	Amount    float64         `json:"amount" db:"amount"`
	GasCost   float64         `json:"gasCost" db:"gas_cost"` // USD
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
