package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/repository"
)

// PromoteMaturedCredits moves matured pending credits into the available
// balance. Each promotion is its own transaction: the wallet row is locked,
// a pending_to_available record referencing the original credit is appended,
// and the balances shift. The original pending_credit row is never touched;
// the uniqueness constraint on the promotion link makes a concurrent sweep
// of the same credit a no-op. Failures are logged per credit and do not
// abort the batch.
func (s *Service) PromoteMaturedCredits(ctx context.Context, now time.Time, limit int) (int, error) {
	log := logging.FromContext(ctx)

	credits, err := s.txns.GetMaturedCredits(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("PromoteMaturedCredits: %w", err)
	}

	promoted := 0
	for _, credit := range credits {
		if err := s.promoteOne(ctx, credit, now); err != nil {
			if errors.Is(err, domain.ErrDuplicateReference) {
				continue
			}
			log.Error("failed to promote credit",
				"transaction_id", credit.ID,
				"wallet_id", credit.WalletID,
				"error", err,
			)
			continue
		}
		promoted++
	}

	if promoted > 0 {
		log.Info("settlement sweep applied", "promoted", promoted, "batch", len(credits))
	}
	return promoted, nil
}

func (s *Service) promoteOne(ctx context.Context, credit domain.Transaction, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("promoteOne: begin tx: %w", err)
	}
	defer tx.Rollback()

	wallet, err := s.wallets.GetForUpdate(ctx, tx, credit.WalletID)
	if err != nil {
		return fmt.Errorf("promoteOne: %w", err)
	}

	// A refund may already have consumed part of this credit from the
	// pending balance; only the remainder moves.
	moved := credit.NetAmount
	if moved > wallet.PendingBalance {
		logging.FromContext(ctx).Warn("pending balance short of credit, clamping promotion",
			"transaction_id", credit.ID,
			"wallet_id", wallet.ID,
			"credit_net", credit.NetAmount,
			"pending_balance", wallet.PendingBalance,
		)
		moved = wallet.PendingBalance
	}

	sourceID := credit.ID
	promotion := &domain.Transaction{
		ID:                  uuid.New(),
		WalletID:            wallet.ID,
		OwnerID:             credit.OwnerID,
		Type:                domain.TransactionTypePendingToAvailable,
		Amount:              credit.NetAmount,
		NetAmount:           moved,
		Status:              domain.TransactionStatusCompleted,
		ServiceType:         credit.ServiceType,
		ReferenceType:       credit.ReferenceType,
		ReferenceID:         credit.ReferenceID,
		SourceTransactionID: &sourceID,
		CreatedAt:           now,
	}
	if err := s.txns.Create(ctx, tx, promotion); err != nil {
		return fmt.Errorf("promoteOne: %w", err)
	}

	if err := s.wallets.UpdateBalances(ctx, tx, wallet.ID, repository.BalanceUpdate{
		Balance:        wallet.Balance + moved,
		PendingBalance: wallet.PendingBalance - moved,
		TotalEarnings:  wallet.TotalEarnings,
		TotalWithdrawn: wallet.TotalWithdrawn,
		Version:        wallet.Version + 1,
	}); err != nil {
		return fmt.Errorf("promoteOne: update wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("promoteOne: commit: %w", err)
	}
	return nil
}

// RunSettlementSweep is the scheduler entry point.
func (s *Service) RunSettlementSweep(ctx context.Context, now time.Time, batch int) (int, error) {
	return s.PromoteMaturedCredits(ctx, now, batch)
}
