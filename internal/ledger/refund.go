package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/fees"
	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/repository"
	"github.com/shopspring/decimal"
)

type RefundRequest struct {
	VendorID    uuid.UUID
	GrossAmount int64
	ServiceType domain.ServiceType
	ReferenceID string
}

// Refund reverses a sale's effect on the vendor wallet. The vendor's net
// share is derived from the fee stored on the original credit transaction,
// not from current fee settings, so later configuration changes cannot skew
// reversals; the current-settings estimate is used only when the original
// record cannot be found. The deduction drains pendingBalance first, then
// balance, clamped at zero — any shortfall is a known-loss condition, not an
// error. Returns the amount actually deducted.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (int64, error) {
	log := logging.FromContext(ctx)

	if req.GrossAmount <= 0 {
		return 0, fmt.Errorf("Refund: %w", domain.ErrInvalidAmount)
	}
	if !req.ServiceType.IsValid() {
		return 0, fmt.Errorf("Refund: %w", domain.ErrInvalidServiceType)
	}

	refundNet, err := s.refundNetShare(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("Refund: %w", err)
	}

	wallet, err := s.wallets.GetOrCreate(ctx, req.VendorID, domain.OwnerKindVendor)
	if err != nil {
		return 0, fmt.Errorf("Refund: %w", err)
	}

	deducted, err := s.executeRefund(ctx, req, wallet.ID, refundNet)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			log.Info("duplicate refund ignored", "reference_id", req.ReferenceID)
			return 0, nil
		}
		return 0, fmt.Errorf("Refund: %w", err)
	}

	log.Info("sale refunded",
		"vendor_id", req.VendorID,
		"reference_id", req.ReferenceID,
		"gross", req.GrossAmount,
		"vendor_net", refundNet,
		"deducted", deducted,
	)
	return deducted, nil
}

// refundNetShare computes the vendor net to claw back. Prefers the ratio
// stored on the original credit so partial refunds scale exactly.
func (s *Service) refundNetShare(ctx context.Context, req RefundRequest) (int64, error) {
	original, err := s.txns.GetByReference(ctx, referenceTypeFor(req.ServiceType), req.ReferenceID, domain.TransactionTypePendingCredit)
	if err == nil {
		if req.GrossAmount >= original.Amount {
			return original.NetAmount, nil
		}
		fee := decimal.NewFromInt(req.GrossAmount).
			Mul(decimal.NewFromInt(original.PlatformFee)).
			Div(decimal.NewFromInt(original.Amount)).
			Round(0).IntPart()
		return req.GrossAmount - fee, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("refundNetShare: %w", err)
	}

	logging.FromContext(ctx).Warn("original credit not found, estimating refund from current fee settings",
		"reference_id", req.ReferenceID,
		"service_type", req.ServiceType,
	)
	pct, err := s.fees.Resolve(ctx, req.ServiceType, false)
	if err != nil {
		return 0, fmt.Errorf("refundNetShare: %w", err)
	}
	_, net := fees.Split(req.GrossAmount, pct)
	return net, nil
}

func (s *Service) executeRefund(ctx context.Context, req RefundRequest, walletID uuid.UUID, refundNet int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("executeRefund: begin tx: %w", err)
	}
	defer tx.Rollback()

	wallet, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		return 0, fmt.Errorf("executeRefund: %w", err)
	}

	fromPending := min(refundNet, wallet.PendingBalance)
	fromBalance := min(refundNet-fromPending, wallet.Balance)
	deducted := fromPending + fromBalance

	now := time.Now().UTC()
	metadata, _ := json.Marshal(map[string]int64{
		"from_pending": fromPending,
		"from_balance": fromBalance,
		"shortfall":    refundNet - deducted,
	})

	debit := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		OwnerID:       req.VendorID,
		Type:          domain.TransactionTypeDebit,
		Amount:        req.GrossAmount,
		PlatformFee:   req.GrossAmount - refundNet,
		NetAmount:     refundNet,
		Status:        domain.TransactionStatusCompleted,
		ServiceType:   req.ServiceType,
		ReferenceType: domain.ReferenceTypeRefund,
		ReferenceID:   req.ReferenceID,
		Metadata:      metadata,
		CreatedAt:     now,
	}
	if err := s.txns.Create(ctx, tx, debit); err != nil {
		return 0, fmt.Errorf("executeRefund: %w", err)
	}

	totalEarnings := wallet.TotalEarnings - refundNet
	if totalEarnings < 0 {
		totalEarnings = 0
	}

	if err := s.wallets.UpdateBalances(ctx, tx, wallet.ID, repository.BalanceUpdate{
		Balance:        wallet.Balance - fromBalance,
		PendingBalance: wallet.PendingBalance - fromPending,
		TotalEarnings:  totalEarnings,
		TotalWithdrawn: wallet.TotalWithdrawn,
		Version:        wallet.Version + 1,
	}); err != nil {
		return 0, fmt.Errorf("executeRefund: update wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("executeRefund: commit: %w", err)
	}
	return deducted, nil
}
