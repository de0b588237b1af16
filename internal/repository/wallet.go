package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
)

const walletColumns = `id, owner_id, owner_kind, balance, pending_balance,
	total_earnings, total_withdrawn, version,
	account_name, account_number, ifsc, bank_name,
	linked_account_id, account_status, product_config_id,
	created_at, updated_at`

type WalletRepository struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByOwnerID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByOwnerID: %w", err)
	}
	return w, nil
}

func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

// GetOrCreate returns the owner's wallet, creating an empty one on first
// access. A concurrent create by another request is resolved by re-reading.
func (r *WalletRepository) GetOrCreate(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind) (*domain.Wallet, error) {
	w, err := r.GetByOwnerID(ctx, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("GetOrCreate: %w", err)
	}

	now := time.Now().UTC()
	created := &domain.Wallet{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		OwnerKind:     kind,
		AccountStatus: domain.LinkedAccountStatusNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO wallets (id, owner_id, owner_kind, account_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		created.ID, created.OwnerID, created.OwnerKind, created.AccountStatus,
		created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return r.GetByOwnerID(ctx, ownerID)
		}
		return nil, fmt.Errorf("GetOrCreate: insert: %w", err)
	}
	return created, nil
}

func (r *WalletRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return w, nil
}

// BalanceUpdate carries the new balance fields for an optimistic update.
// Version must be the wallet's current version plus one.
type BalanceUpdate struct {
	Balance        int64
	PendingBalance int64
	TotalEarnings  int64
	TotalWithdrawn int64
	Version        int64
}

func (r *WalletRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, u BalanceUpdate) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance = $1, pending_balance = $2, total_earnings = $3,
		     total_withdrawn = $4, version = $5, updated_at = now()
		 WHERE id = $6 AND version = $7`,
		u.Balance, u.PendingBalance, u.TotalEarnings, u.TotalWithdrawn,
		u.Version, id, u.Version-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalances: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalances: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *WalletRepository) UpdateBankDetails(ctx context.Context, id uuid.UUID, b domain.BankDetails) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets
		 SET account_name = $1, account_number = $2, ifsc = $3, bank_name = $4, updated_at = now()
		 WHERE id = $5`,
		b.AccountName, b.AccountNumber, b.IFSC, b.BankName, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateBankDetails: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBankDetails: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBankDetails: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateProvisioningState persists linked-account progress. Nil pointers
// clear the stored identifiers, which is how a failed account is reset
// before a provisioning retry.
func (r *WalletRepository) UpdateProvisioningState(ctx context.Context, id uuid.UUID, linkedAccountID, productConfigID *string, status domain.LinkedAccountStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets
		 SET linked_account_id = $1, product_config_id = $2, account_status = $3, updated_at = now()
		 WHERE id = $4`,
		linkedAccountID, productConfigID, status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateProvisioningState: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateProvisioningState: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateProvisioningState: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WalletRepository) CountVendors(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallets WHERE owner_kind = 'vendor'`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountVendors: %w", err)
	}
	return n, nil
}

func scanWallet(s scanner) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.Scan(
		&w.ID, &w.OwnerID, &w.OwnerKind, &w.Balance, &w.PendingBalance,
		&w.TotalEarnings, &w.TotalWithdrawn, &w.Version,
		&w.AccountName, &w.AccountNumber, &w.IFSC, &w.BankName,
		&w.LinkedAccountID, &w.AccountStatus, &w.ProductConfigID,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
