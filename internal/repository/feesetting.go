package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

type FeeSettingRepository struct {
	db *sql.DB
}

func NewFeeSettingRepository(db *sql.DB) *FeeSettingRepository {
	return &FeeSettingRepository{db: db}
}

func (r *FeeSettingRepository) Get(ctx context.Context, key string) (*domain.FeeSetting, error) {
	var fs domain.FeeSetting
	var pct string
	err := r.db.QueryRowContext(ctx,
		`SELECT key, percentage, updated_at FROM fee_settings WHERE key = $1`, key,
	).Scan(&fs.Key, &pct, &fs.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}

	fs.Percentage, err = decimal.NewFromString(pct)
	if err != nil {
		return nil, fmt.Errorf("Get: parse percentage: %w", err)
	}
	return &fs, nil
}

func (r *FeeSettingRepository) Set(ctx context.Context, key string, percentage decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fee_settings (key, percentage, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET percentage = EXCLUDED.percentage, updated_at = now()`,
		key, percentage.String(),
	)
	if err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}
