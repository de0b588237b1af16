package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/repository"
)

func (s *Service) GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetOrCreate(ctx, ownerID, domain.OwnerKindVendor)
	if err != nil {
		return nil, fmt.Errorf("GetWallet: %w", err)
	}
	return w, nil
}

type WalletStats struct {
	Wallet             *domain.Wallet
	EarningsToday      int64
	EarningsThisMonth  int64
	EarningsByService  []repository.ServiceTotal
	RecentTransactions []domain.Transaction
	PendingWithdrawals int
}

func (s *Service) GetWalletStats(ctx context.Context, ownerID uuid.UUID) (*WalletStats, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, ownerID, domain.OwnerKindVendor)
	if err != nil {
		return nil, fmt.Errorf("GetWalletStats: %w", err)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	today, err := s.txns.EarningsSince(ctx, ownerID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("GetWalletStats: %w", err)
	}
	month, err := s.txns.EarningsSince(ctx, ownerID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("GetWalletStats: %w", err)
	}
	byService, err := s.txns.EarningsByService(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("GetWalletStats: %w", err)
	}
	recent, _, err := s.txns.ListByOwner(ctx, ownerID, repository.ListFilter{}, 10, 0)
	if err != nil {
		return nil, fmt.Errorf("GetWalletStats: %w", err)
	}
	pendingWithdrawals, err := s.withdrawals.CountPending(ctx, &wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("GetWalletStats: %w", err)
	}

	return &WalletStats{
		Wallet:             wallet,
		EarningsToday:      today,
		EarningsThisMonth:  month,
		EarningsByService:  byService,
		RecentTransactions: recent,
		PendingWithdrawals: pendingWithdrawals,
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, ownerID uuid.UUID, f repository.ListFilter, limit, offset int) ([]domain.Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	txns, total, err := s.txns.ListByOwner(ctx, ownerID, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return txns, total, nil
}

type PlatformStats struct {
	TotalEarnings      int64
	EarningsToday      int64
	EarningsThisMonth  int64
	FeesByService      []repository.ServiceTotal
	PendingWithdrawals int
	VendorCount        int
}

func (s *Service) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	total, err := s.txns.PlatformFeesSince(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("GetPlatformStats: %w", err)
	}
	today, err := s.txns.PlatformFeesSince(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("GetPlatformStats: %w", err)
	}
	month, err := s.txns.PlatformFeesSince(ctx, monthStart)
	if err != nil {
		return nil, fmt.Errorf("GetPlatformStats: %w", err)
	}
	byService, err := s.txns.PlatformFeesByService(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetPlatformStats: %w", err)
	}
	pending, err := s.withdrawals.CountPending(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("GetPlatformStats: %w", err)
	}
	vendors, err := s.wallets.CountVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetPlatformStats: %w", err)
	}

	return &PlatformStats{
		TotalEarnings:      total,
		EarningsToday:      today,
		EarningsThisMonth:  month,
		FeesByService:      byService,
		PendingWithdrawals: pending,
		VendorCount:        vendors,
	}, nil
}
