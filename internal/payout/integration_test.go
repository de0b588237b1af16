package payout_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/payout"
	"github.com/marketlane/settlement/internal/repository"
	"github.com/marketlane/settlement/internal/testutil"
)

const minWithdrawal = 10_000

func setupPayoutService(t *testing.T, db *sql.DB) *payout.Service {
	t.Helper()
	return payout.NewService(
		repository.NewWalletRepository(db),
		repository.NewWithdrawalRepository(db),
		repository.NewTransactionRepository(db),
		db,
		minWithdrawal,
	)
}

func TestRequest_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	wallet := testutil.SeedWallet(t, db, ownerID, 50_000, 0)

	wr, err := svc.Request(ctx, ownerID, 20_000)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, wr.Status)
	assert.Equal(t, int64(20_000), wr.Amount)
	assert.Equal(t, "Test Vendor", wr.AccountName)

	// Funds are reserved immediately.
	balance, _ := testutil.GetWalletBalances(t, db, wallet.ID)
	assert.Equal(t, int64(30_000), balance)

	// The reservation is visible in the transaction log.
	assert.Equal(t, 1, testutil.CountTransactions(t, db, domain.ReferenceTypeWithdrawal, wr.ID.String()))
}

func TestRequest_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	testutil.SeedWallet(t, db, ownerID, 50_000, 0)

	_, err := svc.Request(ctx, ownerID, 5_000)
	assert.ErrorIs(t, err, domain.ErrBelowMinimumAmount)

	_, err = svc.Request(ctx, ownerID, 100_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.Request(ctx, uuid.New(), 20_000)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bareOwner := uuid.New()
	testutil.SeedBareWallet(t, db, bareOwner, 50_000)
	_, err = svc.Request(ctx, bareOwner, 20_000)
	assert.ErrorIs(t, err, domain.ErrBankDetailsMissing)
}

func TestRequest_OneActivePerWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	testutil.SeedWallet(t, db, ownerID, 100_000, 0)

	_, err := svc.Request(ctx, ownerID, 20_000)
	require.NoError(t, err)

	_, err = svc.Request(ctx, ownerID, 15_000)
	assert.ErrorIs(t, err, domain.ErrWithdrawalExists)
}

func TestRequest_RejectsActiveLinkedAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	wallet := testutil.SeedWallet(t, db, ownerID, 100_000, 0)

	_, err := db.Exec(
		`UPDATE wallets SET linked_account_id = 'acc_live', account_status = 'activated' WHERE id = $1`,
		wallet.ID,
	)
	require.NoError(t, err)

	_, err = svc.Request(ctx, ownerID, 20_000)
	assert.ErrorIs(t, err, domain.ErrAutoSettlementActive)
}

func TestProcess_Completed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	wallet := testutil.SeedWallet(t, db, ownerID, 50_000, 0)

	wr, err := svc.Request(ctx, ownerID, 20_000)
	require.NoError(t, err)

	transferID := "tr_done_1"
	processed, err := svc.Process(ctx, wr.ID, domain.WithdrawalStatusCompleted, &transferID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusCompleted, processed.Status)
	assert.NotNil(t, processed.ProcessedAt)
	require.NotNil(t, processed.TransferID)
	assert.Equal(t, transferID, *processed.TransferID)

	// Balance stays debited; the lifetime withdrawn total moves.
	balance, _ := testutil.GetWalletBalances(t, db, wallet.ID)
	assert.Equal(t, int64(30_000), balance)

	var totalWithdrawn int64
	require.NoError(t, db.QueryRow(`SELECT total_withdrawn FROM wallets WHERE id = $1`, wallet.ID).Scan(&totalWithdrawn))
	assert.Equal(t, int64(20_000), totalWithdrawn)

	// Terminal requests cannot be reprocessed.
	_, err = svc.Process(ctx, wr.ID, domain.WithdrawalStatusFailed, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrWithdrawalTerminal)
}

func TestProcess_FailedRefundsBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	wallet := testutil.SeedWallet(t, db, ownerID, 50_000, 0)

	wr, err := svc.Request(ctx, ownerID, 20_000)
	require.NoError(t, err)

	reason := "bank account closed"
	processed, err := svc.Process(ctx, wr.ID, domain.WithdrawalStatusFailed, nil, nil, &reason)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, processed.Status)
	require.NotNil(t, processed.FailureReason)
	assert.Equal(t, reason, *processed.FailureReason)

	balance, _ := testutil.GetWalletBalances(t, db, wallet.ID)
	assert.Equal(t, int64(50_000), balance, "reserved funds must return on failure")

	// The wallet is free for a new request.
	_, err = svc.Request(ctx, ownerID, 20_000)
	assert.NoError(t, err)
}

func TestProcess_ProcessingKeepsReservation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	wallet := testutil.SeedWallet(t, db, ownerID, 50_000, 0)

	wr, err := svc.Request(ctx, ownerID, 20_000)
	require.NoError(t, err)

	processed, err := svc.Process(ctx, wr.ID, domain.WithdrawalStatusProcessing, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusProcessing, processed.Status)
	assert.Nil(t, processed.ProcessedAt)

	balance, _ := testutil.GetWalletBalances(t, db, wallet.ID)
	assert.Equal(t, int64(30_000), balance)

	// Vendors cannot cancel once an admin started processing.
	_, err = svc.Cancel(ctx, ownerID, wr.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCancel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPayoutService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	wallet := testutil.SeedWallet(t, db, ownerID, 50_000, 0)

	wr, err := svc.Request(ctx, ownerID, 20_000)
	require.NoError(t, err)

	// Another owner cannot cancel this request.
	_, err = svc.Cancel(ctx, uuid.New(), wr.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := svc.Cancel(ctx, ownerID, wr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusCancelled, cancelled.Status)

	balance, _ := testutil.GetWalletBalances(t, db, wallet.ID)
	assert.Equal(t, int64(50_000), balance)
}
