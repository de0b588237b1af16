package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
)

const saleColumns = `id, owner_id, service_type, reference_type, reference_id,
	gross_amount, category_override, gateway_order_id, gateway_payment_id,
	transfer_id, status, created_at, updated_at`

type SaleRepository struct {
	db *sql.DB
}

func NewSaleRepository(db *sql.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sales (
			id, owner_id, service_type, reference_type, reference_id,
			gross_amount, category_override, gateway_order_id,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sale.ID, sale.OwnerID, sale.ServiceType, sale.ReferenceType, sale.ReferenceID,
		sale.GrossAmount, sale.CategoryOverride, sale.GatewayOrderID,
		sale.Status, sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReference)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *SaleRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Sale, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE gateway_order_id = $1`, orderID,
	)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByGatewayOrderID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByGatewayOrderID: %w", err)
	}
	return s, nil
}

func (r *SaleRepository) GetByReference(ctx context.Context, refType domain.ReferenceType, refID string) (*domain.Sale, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE reference_type = $1 AND reference_id = $2`,
		refType, refID,
	)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return s, nil
}

// MarkCompleted transitions a pending sale to completed, recording the
// gateway payment id. Returns ErrSaleProcessed when the sale already left
// the pending state, which is the webhook idempotency gate.
func (r *SaleRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayPaymentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sales SET status = 'completed', gateway_payment_id = $1, updated_at = now()
		 WHERE id = $2 AND status = 'pending'`,
		gatewayPaymentID, id,
	)
	if err != nil {
		return fmt.Errorf("MarkCompleted: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkCompleted: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkCompleted: %w", domain.ErrSaleProcessed)
	}
	return nil
}

func (r *SaleRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sales SET status = 'failed', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkFailed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkFailed: %w", domain.ErrSaleProcessed)
	}
	return nil
}

// SetTransferID records the gateway split-transfer id for read-only
// tracking of automatic settlement.
func (r *SaleRepository) SetTransferID(ctx context.Context, id uuid.UUID, transferID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sales SET transfer_id = $1, updated_at = now() WHERE id = $2`,
		transferID, id,
	)
	if err != nil {
		return fmt.Errorf("SetTransferID: %w", err)
	}
	return nil
}

func scanSale(s scanner) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.Scan(
		&sale.ID, &sale.OwnerID, &sale.ServiceType, &sale.ReferenceType, &sale.ReferenceID,
		&sale.GrossAmount, &sale.CategoryOverride, &sale.GatewayOrderID, &sale.GatewayPaymentID,
		&sale.TransferID, &sale.Status, &sale.CreatedAt, &sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
