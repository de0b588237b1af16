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

const withdrawalColumns = `id, wallet_id, owner_id, amount,
	account_name, account_number, ifsc, bank_name,
	status, transfer_id, admin_note, failure_reason,
	created_at, updated_at, processed_at`

type WithdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create relies on the partial unique index over non-terminal statuses to
// enforce one active request per wallet; a violation maps to
// ErrWithdrawalExists.
func (r *WithdrawalRepository) Create(ctx context.Context, tx *sql.Tx, wr *domain.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (
			id, wallet_id, owner_id, amount,
			account_name, account_number, ifsc, bank_name,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		wr.ID, wr.WalletID, wr.OwnerID, wr.Amount,
		wr.AccountName, wr.AccountNumber, wr.IFSC, wr.BankName,
		wr.Status, wr.CreatedAt, wr.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "ux_withdrawals_active") {
			return fmt.Errorf("Create: %w", domain.ErrWithdrawalExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id,
	)
	wr, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return wr, nil
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
	)
	wr, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return wr, nil
}

func (r *WithdrawalRepository) GetActiveByWallet(ctx context.Context, walletID uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		 WHERE wallet_id = $1 AND status IN ('pending', 'processing')`,
		walletID,
	)
	wr, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetActiveByWallet: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetActiveByWallet: %w", err)
	}
	return wr, nil
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, transferID, adminNote, failureReason *string, processedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests
		 SET status = $1, transfer_id = COALESCE($2, transfer_id),
		     admin_note = COALESCE($3, admin_note),
		     failure_reason = $4, processed_at = $5, updated_at = now()
		 WHERE id = $6`,
		status, transferID, adminNote, failureReason, processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WithdrawalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE owner_id = $1`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByOwner: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		 WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByOwner: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		wr, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByOwner: scan: %w", err)
		}
		out = append(out, *wr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByOwner: rows: %w", err)
	}
	return out, total, nil
}

// CountPending counts non-terminal requests; a nil walletID counts across
// all wallets (admin view).
func (r *WithdrawalRepository) CountPending(ctx context.Context, walletID *uuid.UUID) (int, error) {
	var n int
	var err error
	if walletID != nil {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM withdrawal_requests
			 WHERE wallet_id = $1 AND status IN ('pending', 'processing')`,
			*walletID,
		).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM withdrawal_requests
			 WHERE status IN ('pending', 'processing')`,
		).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("CountPending: %w", err)
	}
	return n, nil
}

func scanWithdrawal(s scanner) (*domain.WithdrawalRequest, error) {
	var wr domain.WithdrawalRequest
	err := s.Scan(
		&wr.ID, &wr.WalletID, &wr.OwnerID, &wr.Amount,
		&wr.AccountName, &wr.AccountNumber, &wr.IFSC, &wr.BankName,
		&wr.Status, &wr.TransferID, &wr.AdminNote, &wr.FailureReason,
		&wr.CreatedAt, &wr.UpdatedAt, &wr.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wr, nil
}
