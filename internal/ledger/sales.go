package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/logging"
)

type RecordSaleRequest struct {
	OwnerID          uuid.UUID
	ServiceType      domain.ServiceType
	ReferenceType    domain.ReferenceType
	ReferenceID      string
	GrossAmount      int64
	CategoryOverride bool
	GatewayOrderID   string
}

// RecordSale registers a sale awaiting payment capture. The stored row is
// what webhook reconciliation later matches by gateway order id.
func (s *Service) RecordSale(ctx context.Context, req RecordSaleRequest) (*domain.Sale, error) {
	if req.GrossAmount <= 0 {
		return nil, fmt.Errorf("RecordSale: %w", domain.ErrInvalidAmount)
	}
	if !req.ServiceType.IsValid() {
		return nil, fmt.Errorf("RecordSale: %w", domain.ErrInvalidServiceType)
	}
	if req.GatewayOrderID == "" || req.ReferenceID == "" {
		return nil, fmt.Errorf("RecordSale: %w", domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	sale := &domain.Sale{
		ID:               uuid.New(),
		OwnerID:          req.OwnerID,
		ServiceType:      req.ServiceType,
		ReferenceType:    req.ReferenceType,
		ReferenceID:      req.ReferenceID,
		GrossAmount:      req.GrossAmount,
		CategoryOverride: req.CategoryOverride,
		GatewayOrderID:   req.GatewayOrderID,
		Status:           domain.SaleStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sales.Create(ctx, sale); err != nil {
		return nil, fmt.Errorf("RecordSale: %w", err)
	}
	return sale, nil
}

// CompleteSale marks a sale captured and credits the vendor. The sale status
// transition is the first idempotency gate; the transaction uniqueness
// constraint inside CreditSale is the second, so a replay that slips past
// one is stopped by the other.
func (s *Service) CompleteSale(ctx context.Context, sale *domain.Sale, gatewayPaymentID string, transferID *string) (*CreditResult, error) {
	log := logging.FromContext(ctx)

	if err := s.sales.MarkCompleted(ctx, sale.ID, gatewayPaymentID); err != nil {
		if errors.Is(err, domain.ErrSaleProcessed) {
			log.Info("sale already processed, skipping credit",
				"sale_id", sale.ID,
				"gateway_order_id", sale.GatewayOrderID,
			)
			return &CreditResult{Duplicate: true}, nil
		}
		return nil, fmt.Errorf("CompleteSale: %w", err)
	}

	if transferID != nil {
		if err := s.sales.SetTransferID(ctx, sale.ID, *transferID); err != nil {
			log.Warn("failed to record transfer id on sale", "sale_id", sale.ID, "error", err)
		}
	}

	res, err := s.CreditSale(ctx, CreditSaleRequest{
		VendorID:         sale.OwnerID,
		GrossAmount:      sale.GrossAmount,
		ServiceType:      sale.ServiceType,
		ReferenceType:    sale.ReferenceType,
		ReferenceID:      sale.ReferenceID,
		CategoryOverride: sale.CategoryOverride,
		TransferID:       transferID,
	})
	if err != nil {
		return nil, fmt.Errorf("CompleteSale: %w", err)
	}
	return res, nil
}

func (s *Service) GetSaleByGatewayOrder(ctx context.Context, orderID string) (*domain.Sale, error) {
	sale, err := s.sales.GetByGatewayOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("GetSaleByGatewayOrder: %w", err)
	}
	return sale, nil
}

func (s *Service) FailSale(ctx context.Context, sale *domain.Sale) error {
	if err := s.sales.MarkFailed(ctx, sale.ID); err != nil {
		if errors.Is(err, domain.ErrSaleProcessed) {
			return nil
		}
		return fmt.Errorf("FailSale: %w", err)
	}
	return nil
}

func (s *Service) RecordSaleTransfer(ctx context.Context, sale *domain.Sale, transferID string) error {
	if err := s.sales.SetTransferID(ctx, sale.ID, transferID); err != nil {
		return fmt.Errorf("RecordSaleTransfer: %w", err)
	}
	return nil
}
