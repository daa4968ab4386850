package types

import "time"

// PricePoint is one sample of the append-only price series of an asset.
type PricePoint struct {
	ID        int64     `json:"id" db:"id"`
	Asset     string    `json:"asset" db:"asset"` // e.g., "ethereum"
	Price     float64   `json:"price" db:"price"` // USD
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
