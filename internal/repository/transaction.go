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

const transactionColumns = `id, wallet_id, owner_id, type, amount, platform_fee,
	net_amount, status, service_type, reference_type, reference_id,
	available_at, source_transaction_id, transfer_id, metadata, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts one ledger transaction. A unique violation on
// (reference_type, reference_id, type) is surfaced as ErrDuplicateReference
// so callers can treat replays as already applied.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, wallet_id, owner_id, type, amount, platform_fee,
			net_amount, status, service_type, reference_type, reference_id,
			available_at, source_transaction_id, transfer_id, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.WalletID, t.OwnerID, t.Type, t.Amount, t.PlatformFee,
		t.NetAmount, t.Status, nullServiceType(t.ServiceType), t.ReferenceType, t.ReferenceID,
		t.AvailableAt, t.SourceTransactionID, t.TransferID, nullJSON(t.Metadata), t.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "ux_transactions_reference") ||
			IsUniqueViolation(err, "ux_transactions_promotion") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReference)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, refType domain.ReferenceType, refID string, txnType domain.TransactionType) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE reference_type = $1 AND reference_id = $2 AND type = $3`,
		refType, refID, txnType,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return t, nil
}

// GetMaturedCredits returns pending_credit transactions whose hold window
// has elapsed and that have no pending_to_available row referencing them.
// Promotion state is derived, never stored on the original row.
func (r *TransactionRepository) GetMaturedCredits(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t
		 WHERE t.type = 'pending_credit'
		   AND t.status = 'completed'
		   AND t.available_at <= $1
		   AND NOT EXISTS (
			SELECT 1 FROM transactions p
			WHERE p.type = 'pending_to_available' AND p.source_transaction_id = t.id
		   )
		 ORDER BY t.available_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetMaturedCredits: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("GetMaturedCredits: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetMaturedCredits: rows: %w", err)
	}
	return txns, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1 WHERE id = $2 AND status = 'pending'`,
		status, id,
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

// ListFilter narrows ListByOwner. Zero values mean no filtering.
type ListFilter struct {
	Type        domain.TransactionType
	ServiceType domain.ServiceType
	From        time.Time
	To          time.Time
}

func (r *TransactionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, f ListFilter, limit, offset int) ([]domain.Transaction, int, error) {
	where := `owner_id = $1`
	args := []any{ownerID}

	if f.Type != "" {
		args = append(args, f.Type)
		where += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if f.ServiceType != "" {
		args = append(args, f.ServiceType)
		where += fmt.Sprintf(` AND service_type = $%d`, len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByOwner: count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByOwner: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByOwner: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByOwner: rows: %w", err)
	}
	return txns, total, nil
}

// EarningsSince sums vendor net earnings credited after the cutoff.
func (r *TransactionRepository) EarningsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(net_amount), 0) FROM transactions
		 WHERE owner_id = $1 AND type = 'pending_credit' AND status = 'completed'
		   AND created_at >= $2`,
		ownerID, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("EarningsSince: %w", err)
	}
	return total.Int64, nil
}

type ServiceTotal struct {
	ServiceType domain.ServiceType
	Total       int64
	Count       int
}

func (r *TransactionRepository) EarningsByService(ctx context.Context, ownerID uuid.UUID) ([]ServiceTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT service_type, COALESCE(SUM(net_amount), 0), COUNT(*)
		 FROM transactions
		 WHERE owner_id = $1 AND type = 'pending_credit' AND status = 'completed'
		 GROUP BY service_type`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("EarningsByService: %w", err)
	}
	defer rows.Close()

	var out []ServiceTotal
	for rows.Next() {
		var st ServiceTotal
		if err := rows.Scan(&st.ServiceType, &st.Total, &st.Count); err != nil {
			return nil, fmt.Errorf("EarningsByService: scan: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EarningsByService: rows: %w", err)
	}
	return out, nil
}

// PlatformFeesSince sums operator fee income recorded after the cutoff.
// A zero cutoff sums everything.
func (r *TransactionRepository) PlatformFeesSince(ctx context.Context, since time.Time) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(net_amount), 0) FROM transactions
		 WHERE type = 'platform_fee' AND status = 'completed' AND created_at >= $1`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("PlatformFeesSince: %w", err)
	}
	return total.Int64, nil
}

func (r *TransactionRepository) PlatformFeesByService(ctx context.Context) ([]ServiceTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT service_type, COALESCE(SUM(net_amount), 0), COUNT(*)
		 FROM transactions
		 WHERE type = 'platform_fee' AND status = 'completed'
		 GROUP BY service_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("PlatformFeesByService: %w", err)
	}
	defer rows.Close()

	var out []ServiceTotal
	for rows.Next() {
		var st ServiceTotal
		if err := rows.Scan(&st.ServiceType, &st.Total, &st.Count); err != nil {
			return nil, fmt.Errorf("PlatformFeesByService: scan: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PlatformFeesByService: rows: %w", err)
	}
	return out, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var serviceType *string
	var sourceID uuid.NullUUID
	var metadata *[]byte

	err := s.Scan(
		&t.ID, &t.WalletID, &t.OwnerID, &t.Type, &t.Amount, &t.PlatformFee,
		&t.NetAmount, &t.Status, &serviceType, &t.ReferenceType, &t.ReferenceID,
		&t.AvailableAt, &sourceID, &t.TransferID, &metadata, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if serviceType != nil {
		t.ServiceType = domain.ServiceType(*serviceType)
	}
	if sourceID.Valid {
		t.SourceTransactionID = &sourceID.UUID
	}
	if metadata != nil {
		t.Metadata = *metadata
	}
	return &t, nil
}

func nullServiceType(s domain.ServiceType) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}
