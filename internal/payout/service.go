// Package payout handles manual withdrawal requests for vendors that do not
// have an activated split-payment account. Funds are reserved by debiting the
// wallet balance when the request is created and returned only if the
// transfer fails or the vendor cancels.
package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/repository"
)

type walletRepo interface {
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, u repository.BalanceUpdate) error
}

type withdrawalRepo interface {
	Create(ctx context.Context, tx *sql.Tx, wr *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, transferID, adminNote, failureReason *string, processedAt *time.Time) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error)
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByReference(ctx context.Context, refType domain.ReferenceType, refID string, txnType domain.TransactionType) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus) error
}

type Service struct {
	wallets     walletRepo
	withdrawals withdrawalRepo
	txns        transactionRepo
	db          *sql.DB
	minAmount   int64
}

func NewService(wallets walletRepo, withdrawals withdrawalRepo, txns transactionRepo, db *sql.DB, minAmount int64) *Service {
	return &Service{
		wallets:     wallets,
		withdrawals: withdrawals,
		txns:        txns,
		db:          db,
		minAmount:   minAmount,
	}
}

// Request creates a withdrawal for the vendor's full requested amount,
// debiting the available balance immediately. Vendors with an activated
// split-payment account are settled automatically by the gateway and are
// rejected here.
func (s *Service) Request(ctx context.Context, ownerID uuid.UUID, amount int64) (*domain.WithdrawalRequest, error) {
	log := logging.FromContext(ctx)

	if amount <= 0 {
		return nil, fmt.Errorf("Request: %w", domain.ErrInvalidAmount)
	}
	if amount < s.minAmount {
		return nil, fmt.Errorf("Request: %w", domain.ErrBelowMinimumAmount)
	}

	wallet, err := s.wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Request: %w", err)
	}
	if wallet.HasActiveLinkedAccount() {
		return nil, fmt.Errorf("Request: %w", domain.ErrAutoSettlementActive)
	}
	bank := wallet.BankDetails()
	if !bank.Complete() {
		return nil, fmt.Errorf("Request: %w", domain.ErrBankDetailsMissing)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Request: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.wallets.GetForUpdate(ctx, tx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("Request: %w", err)
	}
	if amount > locked.Balance {
		return nil, fmt.Errorf("Request: %w", domain.ErrInsufficientBalance)
	}

	now := time.Now().UTC()
	wr := &domain.WithdrawalRequest{
		ID:            uuid.New(),
		WalletID:      locked.ID,
		OwnerID:       ownerID,
		Amount:        amount,
		AccountName:   bank.AccountName,
		AccountNumber: bank.AccountNumber,
		IFSC:          bank.IFSC,
		BankName:      bank.BankName,
		Status:        domain.WithdrawalStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.withdrawals.Create(ctx, tx, wr); err != nil {
		return nil, fmt.Errorf("Request: %w", err)
	}

	debit := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      locked.ID,
		OwnerID:       ownerID,
		Type:          domain.TransactionTypeDebit,
		Amount:        amount,
		NetAmount:     amount,
		Status:        domain.TransactionStatusPending,
		ReferenceType: domain.ReferenceTypeWithdrawal,
		ReferenceID:   wr.ID.String(),
		CreatedAt:     now,
	}
	if err := s.txns.Create(ctx, tx, debit); err != nil {
		return nil, fmt.Errorf("Request: debit transaction: %w", err)
	}

	if err := s.wallets.UpdateBalances(ctx, tx, locked.ID, repository.BalanceUpdate{
		Balance:        locked.Balance - amount,
		PendingBalance: locked.PendingBalance,
		TotalEarnings:  locked.TotalEarnings,
		TotalWithdrawn: locked.TotalWithdrawn,
		Version:        locked.Version + 1,
	}); err != nil {
		return nil, fmt.Errorf("Request: update wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Request: commit: %w", err)
	}

	log.Info("withdrawal requested",
		"withdrawal_id", wr.ID,
		"owner_id", ownerID,
		"amount", amount,
	)
	return wr, nil
}

// Process applies an admin decision to a pending or processing withdrawal.
// completed books the payout permanently; failed returns the reserved funds
// to the wallet; processing just records progress.
func (s *Service) Process(ctx context.Context, withdrawalID uuid.UUID, status domain.WithdrawalStatus, transferID, adminNote, failureReason *string) (*domain.WithdrawalRequest, error) {
	log := logging.FromContext(ctx)

	switch status {
	case domain.WithdrawalStatusProcessing, domain.WithdrawalStatusCompleted, domain.WithdrawalStatusFailed:
	default:
		return nil, fmt.Errorf("Process: status %q: %w", status, domain.ErrInvalidRequest)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Process: begin tx: %w", err)
	}
	defer tx.Rollback()

	wr, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}
	if wr.Status.Terminal() {
		return nil, fmt.Errorf("Process: %w", domain.ErrWithdrawalTerminal)
	}

	var processedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		processedAt = &now
	}
	if err := s.withdrawals.UpdateStatus(ctx, tx, wr.ID, status, transferID, adminNote, failureReason, processedAt); err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	switch status {
	case domain.WithdrawalStatusCompleted:
		if err := s.settleDebit(ctx, tx, wr, domain.TransactionStatusCompleted, func(w *domain.Wallet) repository.BalanceUpdate {
			return repository.BalanceUpdate{
				Balance:        w.Balance,
				PendingBalance: w.PendingBalance,
				TotalEarnings:  w.TotalEarnings,
				TotalWithdrawn: w.TotalWithdrawn + wr.Amount,
				Version:        w.Version + 1,
			}
		}); err != nil {
			return nil, fmt.Errorf("Process: %w", err)
		}
	case domain.WithdrawalStatusFailed:
		if err := s.settleDebit(ctx, tx, wr, domain.TransactionStatusFailed, func(w *domain.Wallet) repository.BalanceUpdate {
			return repository.BalanceUpdate{
				Balance:        w.Balance + wr.Amount,
				PendingBalance: w.PendingBalance,
				TotalEarnings:  w.TotalEarnings,
				TotalWithdrawn: w.TotalWithdrawn,
				Version:        w.Version + 1,
			}
		}); err != nil {
			return nil, fmt.Errorf("Process: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Process: commit: %w", err)
	}

	log.Info("withdrawal processed",
		"withdrawal_id", wr.ID,
		"status", status,
	)

	updated, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}
	return updated, nil
}

// Cancel lets the vendor withdraw a request that an admin has not started
// processing, returning the reserved funds.
func (s *Service) Cancel(ctx context.Context, ownerID, withdrawalID uuid.UUID) (*domain.WithdrawalRequest, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Cancel: begin tx: %w", err)
	}
	defer tx.Rollback()

	wr, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if wr.OwnerID != ownerID {
		return nil, fmt.Errorf("Cancel: %w", domain.ErrNotFound)
	}
	if wr.Status != domain.WithdrawalStatusPending {
		if wr.Status.Terminal() {
			return nil, fmt.Errorf("Cancel: %w", domain.ErrWithdrawalTerminal)
		}
		return nil, fmt.Errorf("Cancel: status %q: %w", wr.Status, domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	if err := s.withdrawals.UpdateStatus(ctx, tx, wr.ID, domain.WithdrawalStatusCancelled, nil, nil, nil, &now); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := s.settleDebit(ctx, tx, wr, domain.TransactionStatusCancelled, func(w *domain.Wallet) repository.BalanceUpdate {
		return repository.BalanceUpdate{
			Balance:        w.Balance + wr.Amount,
			PendingBalance: w.PendingBalance,
			TotalEarnings:  w.TotalEarnings,
			TotalWithdrawn: w.TotalWithdrawn,
			Version:        w.Version + 1,
		}
	}); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Cancel: commit: %w", err)
	}

	log.Info("withdrawal cancelled", "withdrawal_id", wr.ID, "owner_id", ownerID)

	updated, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, ownerID, withdrawalID uuid.UUID) (*domain.WithdrawalRequest, error) {
	wr, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if wr.OwnerID != ownerID {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	return wr, nil
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	out, total, err := s.withdrawals.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return out, total, nil
}

// settleDebit resolves the pending debit transaction created at request time
// and applies the terminal balance adjustment under the wallet row lock.
func (s *Service) settleDebit(ctx context.Context, tx *sql.Tx, wr *domain.WithdrawalRequest, txnStatus domain.TransactionStatus, update func(*domain.Wallet) repository.BalanceUpdate) error {
	debit, err := s.txns.GetByReference(ctx, domain.ReferenceTypeWithdrawal, wr.ID.String(), domain.TransactionTypeDebit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("settleDebit: debit transaction missing for withdrawal %s: %w", wr.ID, err)
		}
		return fmt.Errorf("settleDebit: %w", err)
	}
	if err := s.txns.UpdateStatus(ctx, tx, debit.ID, txnStatus); err != nil {
		return fmt.Errorf("settleDebit: %w", err)
	}

	wallet, err := s.wallets.GetForUpdate(ctx, tx, wr.WalletID)
	if err != nil {
		return fmt.Errorf("settleDebit: %w", err)
	}
	if err := s.wallets.UpdateBalances(ctx, tx, wallet.ID, update(wallet)); err != nil {
		return fmt.Errorf("settleDebit: %w", err)
	}
	return nil
}
