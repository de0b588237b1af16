package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/fees"
	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/repository"
)

type CreditSaleRequest struct {
	VendorID         uuid.UUID
	GrossAmount      int64
	ServiceType      domain.ServiceType
	ReferenceType    domain.ReferenceType
	ReferenceID      string
	CategoryOverride bool
	TransferID       *string
	Metadata         []byte
}

type CreditResult struct {
	VendorNet   int64
	PlatformFee int64
	// Duplicate is true when the sale had already been credited and this
	// call was a no-op replay.
	Duplicate bool
}

// CreditSale applies one completed sale to the vendor's wallet: the vendor
// share lands in pendingBalance behind the settlement hold, the platform fee
// is booked against the operator wallet. Replays for the same reference are
// detected by the transactions uniqueness constraint and return the
// originally stored amounts.
func (s *Service) CreditSale(ctx context.Context, req CreditSaleRequest) (*CreditResult, error) {
	log := logging.FromContext(ctx)

	if req.GrossAmount <= 0 {
		return nil, fmt.Errorf("CreditSale: %w", domain.ErrInvalidAmount)
	}
	if !req.ServiceType.IsValid() {
		return nil, fmt.Errorf("CreditSale: %w", domain.ErrInvalidServiceType)
	}
	if req.ReferenceID == "" {
		return nil, fmt.Errorf("CreditSale: reference id required: %w", domain.ErrInvalidRequest)
	}

	pct, err := s.fees.Resolve(ctx, req.ServiceType, req.CategoryOverride)
	if err != nil {
		return nil, fmt.Errorf("CreditSale: %w", err)
	}
	fee, net := fees.Split(req.GrossAmount, pct)

	wallet, err := s.wallets.GetOrCreate(ctx, req.VendorID, domain.OwnerKindVendor)
	if err != nil {
		return nil, fmt.Errorf("CreditSale: %w", err)
	}
	operatorWallet, err := s.wallets.GetOrCreate(ctx, OperatorOwnerID, domain.OwnerKindOperator)
	if err != nil {
		return nil, fmt.Errorf("CreditSale: %w", err)
	}

	res, err := s.executeCredit(ctx, req, wallet.ID, operatorWallet.ID, fee, net)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return s.replayCredit(ctx, req)
		}
		return nil, fmt.Errorf("CreditSale: %w", err)
	}

	log.Info("sale credited",
		"vendor_id", req.VendorID,
		"wallet_id", wallet.ID,
		"reference_type", req.ReferenceType,
		"reference_id", req.ReferenceID,
		"gross", req.GrossAmount,
		"vendor_net", net,
		"platform_fee", fee,
	)
	return res, nil
}

func (s *Service) executeCredit(ctx context.Context, req CreditSaleRequest, walletID, operatorWalletID uuid.UUID, fee, net int64) (*CreditResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeCredit: begin tx: %w", err)
	}
	defer tx.Rollback()

	wallet, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, fmt.Errorf("executeCredit: %w", err)
	}

	now := time.Now().UTC()
	availableAt := now.AddDate(0, 0, s.holdDays)

	pendingCredit := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		OwnerID:       req.VendorID,
		Type:          domain.TransactionTypePendingCredit,
		Amount:        req.GrossAmount,
		PlatformFee:   fee,
		NetAmount:     net,
		Status:        domain.TransactionStatusCompleted,
		ServiceType:   req.ServiceType,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		AvailableAt:   &availableAt,
		TransferID:    req.TransferID,
		Metadata:      req.Metadata,
		CreatedAt:     now,
	}
	if err := s.txns.Create(ctx, tx, pendingCredit); err != nil {
		return nil, fmt.Errorf("executeCredit: pending credit: %w", err)
	}

	// Same reference id as the vendor credit so refunds can locate both.
	feeTxn := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      operatorWalletID,
		OwnerID:       OperatorOwnerID,
		Type:          domain.TransactionTypePlatformFee,
		Amount:        req.GrossAmount,
		PlatformFee:   fee,
		NetAmount:     fee,
		Status:        domain.TransactionStatusCompleted,
		ServiceType:   req.ServiceType,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		TransferID:    req.TransferID,
		CreatedAt:     now,
	}
	if err := s.txns.Create(ctx, tx, feeTxn); err != nil {
		return nil, fmt.Errorf("executeCredit: platform fee: %w", err)
	}

	if err := s.wallets.UpdateBalances(ctx, tx, wallet.ID, repository.BalanceUpdate{
		Balance:        wallet.Balance,
		PendingBalance: wallet.PendingBalance + net,
		TotalEarnings:  wallet.TotalEarnings + net,
		TotalWithdrawn: wallet.TotalWithdrawn,
		Version:        wallet.Version + 1,
	}); err != nil {
		return nil, fmt.Errorf("executeCredit: update wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeCredit: commit: %w", err)
	}

	return &CreditResult{VendorNet: net, PlatformFee: fee}, nil
}

// replayCredit returns the amounts stored by the first application of this
// reference, so retried requests and duplicate webhooks observe identical
// results.
func (s *Service) replayCredit(ctx context.Context, req CreditSaleRequest) (*CreditResult, error) {
	log := logging.FromContext(ctx)

	existing, err := s.txns.GetByReference(ctx, req.ReferenceType, req.ReferenceID, domain.TransactionTypePendingCredit)
	if err != nil {
		return nil, fmt.Errorf("replayCredit: %w", err)
	}

	log.Info("duplicate sale credit ignored",
		"reference_type", req.ReferenceType,
		"reference_id", req.ReferenceID,
		"transaction_id", existing.ID,
	)
	return &CreditResult{
		VendorNet:   existing.NetAmount,
		PlatformFee: existing.PlatformFee,
		Duplicate:   true,
	}, nil
}
