package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yieldvault/rebalancer/internal/types"
)

func (s *PostgresStore) CreatePrice(ctx context.Context, p types.PricePoint) (*types.PricePoint, error) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	query := `INSERT INTO price_points (asset, price, timestamp) VALUES ($1, $2, $3) RETURNING id`
	if err := s.db.QueryRowContext(ctx, query, p.Asset, p.Price, p.Timestamp).Scan(&p.ID); err != nil {
		return nil, fmt.Errorf("failed to insert price for %s: %w", p.Asset, err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPrices(ctx context.Context, asset string, since time.Time) ([]types.PricePoint, error) {
	var points []types.PricePoint
	query := `
		SELECT id, asset, price, timestamp FROM price_points
		WHERE asset = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, id ASC`
	if err := s.db.SelectContext(ctx, &points, query, asset, since); err != nil {
		return nil, fmt.Errorf("failed to list prices for %s: %w", asset, err)
	}
	return points, nil
}

func (s *PostgresStore) GetLatestPrice(ctx context.Context, asset string) (*types.PricePoint, error) {
	var point types.PricePoint
	query := `
		SELECT id, asset, price, timestamp FROM price_points
		WHERE asset = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`
	err := s.db.GetContext(ctx, &point, query, asset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("price for %s: %w", asset, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price for %s: %w", asset, err)
	}
	return &point, nil
}
