package ledger_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/fees"
	"github.com/marketlane/settlement/internal/ledger"
	"github.com/marketlane/settlement/internal/repository"
	"github.com/marketlane/settlement/internal/testutil"
)

func setupLedgerService(t *testing.T, db *sql.DB) *ledger.Service {
	t.Helper()
	return ledger.NewService(
		repository.NewWalletRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewSaleRepository(db),
		repository.NewWithdrawalRepository(db),
		fees.NewPolicy(repository.NewFeeSettingRepository(db)),
		db,
		7,
	)
}

func vendorWalletID(t *testing.T, db *sql.DB, ownerID uuid.UUID) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := db.QueryRow(`SELECT id FROM wallets WHERE owner_id = $1`, ownerID).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestCreditSale_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	res, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_happy_1",
	})

	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(800), res.VendorNet)
	assert.Equal(t, int64(200), res.PlatformFee)

	walletID := vendorWalletID(t, db, vendorID)
	balance, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(800), pending)

	// vendor pending_credit plus the operator platform_fee row
	assert.Equal(t, 2, testutil.CountTransactions(t, db, domain.ReferenceTypeBooking, "bkg_happy_1"))
}

func TestCreditSale_DuplicateReference(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	req := ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_dup_1",
	}

	first, err := svc.CreditSale(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.CreditSale(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.VendorNet, second.VendorNet)
	assert.Equal(t, first.PlatformFee, second.PlatformFee)

	walletID := vendorWalletID(t, db, vendorID)
	_, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(800), pending, "replay must not credit twice")
	assert.Equal(t, 2, testutil.CountTransactions(t, db, domain.ReferenceTypeBooking, "bkg_dup_1"))
}

func TestCreditSale_CategoryOverride(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	res, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:         uuid.New(),
		GrossAmount:      1000,
		ServiceType:      domain.ServiceTypeEvent,
		ReferenceType:    domain.ReferenceTypeBooking,
		ReferenceID:      "bkg_override_1",
		CategoryOverride: true,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(900), res.VendorNet)
	assert.Equal(t, int64(100), res.PlatformFee)
}

func TestCreditSale_ConfiguredFeeSetting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	testutil.SeedFeeSetting(t, db, domain.FeeSettingKeyMedia, 30)

	res, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      uuid.New(),
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeMedia,
		ReferenceType: domain.ReferenceTypePurchase,
		ReferenceID:   "pur_cfg_1",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(700), res.VendorNet)
	assert.Equal(t, int64(300), res.PlatformFee)
}

func TestCreditSale_InvalidInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      uuid.New(),
		GrossAmount:   0,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_zero",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      uuid.New(),
		GrossAmount:   1000,
		ServiceType:   domain.ServiceType("subscription"),
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_badtype",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidServiceType)
}

func TestSettlementSweep_PromotesMaturedCredits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_sweep_1",
	})
	require.NoError(t, err)

	walletID := vendorWalletID(t, db, vendorID)

	// Still inside the hold window: nothing to promote.
	promoted, err := svc.RunSettlementSweep(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)

	testutil.BackdatePendingCredit(t, db, domain.ReferenceTypeBooking, "bkg_sweep_1", time.Now().UTC().Add(-time.Hour))

	promoted, err = svc.RunSettlementSweep(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	balance, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(800), balance)
	assert.Equal(t, int64(0), pending)

	// Sweeping again must not double-promote.
	promoted, err = svc.RunSettlementSweep(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)

	balance, pending = testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(800), balance)
	assert.Equal(t, int64(0), pending)
}

func TestRefund_FullFromPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_refund_1",
	})
	require.NoError(t, err)

	deducted, err := svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 1000,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(800), deducted)

	walletID := vendorWalletID(t, db, vendorID)
	balance, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(0), pending)
}

func TestRefund_PartialUsesOriginalFeeRatio(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_refund_2",
	})
	require.NoError(t, err)

	// Raising the configured fee afterwards must not change the clawback:
	// the refund uses the 20% stored on the original credit.
	testutil.SeedFeeSetting(t, db, domain.FeeSettingKeyEvent, 50)

	deducted, err := svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 500,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(400), deducted)

	walletID := vendorWalletID(t, db, vendorID)
	_, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(400), pending)
}

func TestRefund_PartialLargeAmounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	// Amounts in the billions of minor units: the gross x fee product does
	// not fit in int64, so the ratio must be computed in decimal.
	vendorID := uuid.New()
	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   10_000_000_000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_refund_large",
	})
	require.NoError(t, err)

	deducted, err := svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 9_000_000_000,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_large",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7_200_000_000), deducted)

	walletID := vendorWalletID(t, db, vendorID)
	_, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(800_000_000), pending)
}

func TestRefund_ClampsAtZero(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_refund_3",
	})
	require.NoError(t, err)

	walletID := vendorWalletID(t, db, vendorID)

	// Drain most of the pending balance with a first refund.
	_, err = svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 900,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_3",
	})
	require.NoError(t, err)

	// A refund for a different reference that exceeds what is left deducts
	// only the remainder; balances never go negative.
	deducted, err := svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 1000,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_3_other",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(80), deducted)

	balance, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(0), pending)
}

func TestRefund_DuplicateIsNoOp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	_, err := svc.CreditSale(ctx, ledger.CreditSaleRequest{
		VendorID:      vendorID,
		GrossAmount:   1000,
		ServiceType:   domain.ServiceTypeEvent,
		ReferenceType: domain.ReferenceTypeBooking,
		ReferenceID:   "bkg_refund_4",
	})
	require.NoError(t, err)

	first, err := svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 1000,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_4",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(800), first)

	second, err := svc.Refund(ctx, ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: 1000,
		ServiceType: domain.ServiceTypeEvent,
		ReferenceID: "bkg_refund_4",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second)
}

func TestRecordAndCompleteSale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	vendorID := uuid.New()
	sale, err := svc.RecordSale(ctx, ledger.RecordSaleRequest{
		OwnerID:        vendorID,
		ServiceType:    domain.ServiceTypeMedia,
		ReferenceType:  domain.ReferenceTypePurchase,
		ReferenceID:    "pur_flow_1",
		GrossAmount:    2000,
		GatewayOrderID: "order_flow_1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPending, sale.Status)

	res, err := svc.CompleteSale(ctx, sale, "pay_flow_1", nil)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(1600), res.VendorNet)
	assert.Equal(t, int64(400), res.PlatformFee)

	// Replayed capture is swallowed by the sale status gate.
	res, err = svc.CompleteSale(ctx, sale, "pay_flow_1", nil)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	walletID := vendorWalletID(t, db, vendorID)
	_, pending := testutil.GetWalletBalances(t, db, walletID)
	assert.Equal(t, int64(1600), pending)
}
