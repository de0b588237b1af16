package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketlane/settlement/internal/domain"
)

// SeedWallet inserts a vendor wallet with the given balances and complete
// bank details.
func SeedWallet(t *testing.T, db *sql.DB, ownerID uuid.UUID, balance, pendingBalance int64) *domain.Wallet {
	t.Helper()

	w := &domain.Wallet{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		OwnerKind:      domain.OwnerKindVendor,
		Balance:        balance,
		PendingBalance: pendingBalance,
		TotalEarnings:  balance + pendingBalance,
		AccountStatus:  domain.LinkedAccountStatusNone,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO wallets (id, owner_id, owner_kind, balance, pending_balance, total_earnings,
			account_name, account_number, ifsc, bank_name, account_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'Test Vendor', '000111222333', 'TEST0001', 'Test Bank', $7, $8)`,
		w.ID, w.OwnerID, w.OwnerKind, w.Balance, w.PendingBalance, w.TotalEarnings, w.AccountStatus, w.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed wallet for %s: %v", ownerID, err)
	}
	return w
}

// SeedBareWallet inserts a vendor wallet with no bank details.
func SeedBareWallet(t *testing.T, db *sql.DB, ownerID uuid.UUID, balance int64) *domain.Wallet {
	t.Helper()

	w := &domain.Wallet{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		OwnerKind:     domain.OwnerKindVendor,
		Balance:       balance,
		AccountStatus: domain.LinkedAccountStatusNone,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO wallets (id, owner_id, owner_kind, balance, account_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.OwnerID, w.OwnerKind, w.Balance, w.AccountStatus, w.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed bare wallet for %s: %v", ownerID, err)
	}
	return w
}

func SeedFeeSetting(t *testing.T, db *sql.DB, key string, percentage int64) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO fee_settings (key, percentage, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET percentage = EXCLUDED.percentage, updated_at = now()`,
		key, decimal.NewFromInt(percentage).String(),
	)
	if err != nil {
		t.Fatalf("seed fee setting %s: %v", key, err)
	}
}

func SeedSale(t *testing.T, db *sql.DB, ownerID uuid.UUID, serviceType domain.ServiceType, referenceID, gatewayOrderID string, gross int64) *domain.Sale {
	t.Helper()

	refType := domain.ReferenceTypeBooking
	if serviceType == domain.ServiceTypeMedia {
		refType = domain.ReferenceTypePurchase
	}

	s := &domain.Sale{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		ServiceType:    serviceType,
		ReferenceType:  refType,
		ReferenceID:    referenceID,
		GrossAmount:    gross,
		GatewayOrderID: gatewayOrderID,
		Status:         domain.SaleStatusPending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO sales (id, owner_id, service_type, reference_type, reference_id,
			gross_amount, category_override, gateway_order_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8, $9, $10)`,
		s.ID, s.OwnerID, s.ServiceType, s.ReferenceType, s.ReferenceID,
		s.GrossAmount, s.GatewayOrderID, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed sale %s: %v", referenceID, err)
	}
	return s
}

func GetWalletBalances(t *testing.T, db *sql.DB, walletID uuid.UUID) (balance, pending int64) {
	t.Helper()

	err := db.QueryRow(
		`SELECT balance, pending_balance FROM wallets WHERE id = $1`, walletID,
	).Scan(&balance, &pending)
	if err != nil {
		t.Fatalf("get wallet balances %s: %v", walletID, err)
	}
	return balance, pending
}

func CountTransactions(t *testing.T, db *sql.DB, refType domain.ReferenceType, refID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE reference_type = $1 AND reference_id = $2`,
		refType, refID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for %s/%s: %v", refType, refID, err)
	}
	return count
}

// BackdatePendingCredit rewinds a pending credit's maturity so sweeps see it
// as settled.
func BackdatePendingCredit(t *testing.T, db *sql.DB, refType domain.ReferenceType, refID string, to time.Time) {
	t.Helper()

	res, err := db.Exec(
		`UPDATE transactions SET available_at = $1
		 WHERE reference_type = $2 AND reference_id = $3 AND type = 'pending_credit'`,
		to, refType, refID,
	)
	if err != nil {
		t.Fatalf("backdate pending credit %s/%s: %v", refType, refID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		t.Fatalf("backdate pending credit %s/%s: no rows", refType, refID)
	}
}
