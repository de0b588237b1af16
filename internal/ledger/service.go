// Package ledger is the source of truth for money: it records sale credits,
// platform fees, refunds and settlement promotions as append-only
// transactions, and maintains the derived per-wallet balance snapshot.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/repository"
	"github.com/shopspring/decimal"
)

// OperatorOwnerID owns the platform wallet that platform_fee transactions
// are booked against.
var OperatorOwnerID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type walletRepo interface {
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, u repository.BalanceUpdate) error
	CountVendors(ctx context.Context) (int, error)
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByReference(ctx context.Context, refType domain.ReferenceType, refID string, txnType domain.TransactionType) (*domain.Transaction, error)
	GetMaturedCredits(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, f repository.ListFilter, limit, offset int) ([]domain.Transaction, int, error)
	EarningsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error)
	EarningsByService(ctx context.Context, ownerID uuid.UUID) ([]repository.ServiceTotal, error)
	PlatformFeesSince(ctx context.Context, since time.Time) (int64, error)
	PlatformFeesByService(ctx context.Context) ([]repository.ServiceTotal, error)
}

type saleRepo interface {
	Create(ctx context.Context, sale *domain.Sale) error
	GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Sale, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, gatewayPaymentID string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	SetTransferID(ctx context.Context, id uuid.UUID, transferID string) error
}

type withdrawalRepo interface {
	CountPending(ctx context.Context, walletID *uuid.UUID) (int, error)
}

type feePolicy interface {
	Resolve(ctx context.Context, serviceType domain.ServiceType, categoryOverride bool) (decimal.Decimal, error)
}

type Service struct {
	wallets     walletRepo
	txns        transactionRepo
	sales       saleRepo
	withdrawals withdrawalRepo
	fees        feePolicy
	db          *sql.DB
	holdDays    int
}

func NewService(
	wallets walletRepo,
	txns transactionRepo,
	sales saleRepo,
	withdrawals withdrawalRepo,
	fees feePolicy,
	db *sql.DB,
	holdDays int,
) *Service {
	return &Service{
		wallets:     wallets,
		txns:        txns,
		sales:       sales,
		withdrawals: withdrawals,
		fees:        fees,
		db:          db,
		holdDays:    holdDays,
	}
}

// referenceTypeFor maps a service type to the reference kind its sales
// carry: event bookings vs media purchases.
func referenceTypeFor(serviceType domain.ServiceType) domain.ReferenceType {
	if serviceType == domain.ServiceTypeMedia {
		return domain.ReferenceTypePurchase
	}
	return domain.ReferenceTypeBooking
}
