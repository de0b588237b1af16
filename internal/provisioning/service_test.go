package provisioning_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/gateway"
	"github.com/marketlane/settlement/internal/provisioning"
)

type stubWallets struct {
	mu     sync.Mutex
	wallet *domain.Wallet
}

func (s *stubWallets) GetByOwnerID(_ context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil || s.wallet.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	w := *s.wallet
	return &w, nil
}

func (s *stubWallets) UpdateProvisioningState(_ context.Context, id uuid.UUID, linkedAccountID, productConfigID *string, status domain.LinkedAccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil || s.wallet.ID != id {
		return domain.ErrNotFound
	}
	s.wallet.LinkedAccountID = linkedAccountID
	s.wallet.ProductConfigID = productConfigID
	s.wallet.AccountStatus = status
	return nil
}

type stubGateway struct {
	mu sync.Mutex

	createCalls      int
	createErr        error
	createErrOnce    bool
	lastCreateReq    gateway.CreateLinkedAccountRequest
	deleteCalls      int
	stakeholderCalls int
	stakeholderErr   error
	productCalls     int
	updateCalls      int
	activateCalls    int
	accountStatus    string
	enteredCreate    chan struct{}
	blockCreate      chan struct{}
}

func (g *stubGateway) CreateLinkedAccount(_ context.Context, req gateway.CreateLinkedAccountRequest) (*gateway.LinkedAccount, error) {
	if g.enteredCreate != nil {
		g.enteredCreate <- struct{}{}
	}
	if g.blockCreate != nil {
		<-g.blockCreate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastCreateReq = req
	if g.createErr != nil {
		err := g.createErr
		if g.createErrOnce {
			g.createErr = nil
		}
		return nil, err
	}
	return &gateway.LinkedAccount{ID: "acc_stub", Name: req.Name, Email: req.Email, Status: "created"}, nil
}

func (g *stubGateway) FetchLinkedAccount(_ context.Context, accountID string) (*gateway.LinkedAccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := g.accountStatus
	if status == "" {
		status = "activated"
	}
	return &gateway.LinkedAccount{ID: accountID, Status: status}, nil
}

func (g *stubGateway) DeleteLinkedAccount(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls++
	return nil
}

func (g *stubGateway) CreateStakeholder(_ context.Context, _ string, req gateway.StakeholderRequest) (*gateway.Stakeholder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stakeholderCalls++
	if g.stakeholderErr != nil {
		return nil, g.stakeholderErr
	}
	return &gateway.Stakeholder{ID: "sh_stub", Name: req.Name, Email: req.Email}, nil
}

func (g *stubGateway) RequestProductConfig(_ context.Context, _ string) (*gateway.ProductConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.productCalls++
	return &gateway.ProductConfig{ID: "prd_stub", ActivationStatus: "requested"}, nil
}

func (g *stubGateway) UpdateProductConfig(_ context.Context, _, _ string, _ gateway.ProductConfigUpdate) (*gateway.ProductConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateCalls++
	return &gateway.ProductConfig{ID: "prd_stub", ActivationStatus: "needs_clarification"}, nil
}

func (g *stubGateway) SubmitActivation(_ context.Context, _, _ string) (*gateway.ProductConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activateCalls++
	return &gateway.ProductConfig{ID: "prd_stub", ActivationStatus: "activated"}, nil
}

func strPtr(s string) *string { return &s }

func walletWithBank(ownerID uuid.UUID) *domain.Wallet {
	return &domain.Wallet{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		OwnerKind:     domain.OwnerKindVendor,
		AccountName:   strPtr("Test Vendor"),
		AccountNumber: strPtr("000111222333"),
		IFSC:          strPtr("TEST0001"),
		BankName:      strPtr("Test Bank"),
		AccountStatus: domain.LinkedAccountStatusNone,
	}
}

var testProfile = provisioning.Profile{Name: "Test Vendor", Email: "vendor@test.com"}

func TestProvision_HappyPath(t *testing.T) {
	ownerID := uuid.New()
	wallets := &stubWallets{wallet: walletWithBank(ownerID)}
	gw := &stubGateway{}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)

	assert.Equal(t, domain.LinkedAccountStatusActivated, wallet.AccountStatus)
	require.NotNil(t, wallet.LinkedAccountID)
	assert.Equal(t, "acc_stub", *wallet.LinkedAccountID)
	require.NotNil(t, wallet.ProductConfigID)
	assert.Equal(t, "prd_stub", *wallet.ProductConfigID)

	assert.Equal(t, 1, gw.createCalls)
	assert.Equal(t, 1, gw.stakeholderCalls)
	assert.Equal(t, 1, gw.productCalls)
	assert.Equal(t, 1, gw.updateCalls)
	assert.Equal(t, 1, gw.activateCalls)
	assert.Equal(t, 0, gw.deleteCalls)
}

func TestProvision_ResumesFromStoredAccount(t *testing.T) {
	ownerID := uuid.New()
	w := walletWithBank(ownerID)
	w.LinkedAccountID = strPtr("acc_prior")
	w.AccountStatus = domain.LinkedAccountStatusCreated
	wallets := &stubWallets{wallet: w}
	gw := &stubGateway{}
	svc := provisioning.NewService(wallets, gw)

	_, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)

	assert.Equal(t, 0, gw.createCalls, "stored account must be reused")
	assert.Equal(t, 1, gw.stakeholderCalls)
	assert.Equal(t, 1, gw.productCalls)
}

func TestProvision_SkipsStoredProduct(t *testing.T) {
	ownerID := uuid.New()
	w := walletWithBank(ownerID)
	w.LinkedAccountID = strPtr("acc_prior")
	w.ProductConfigID = strPtr("prd_prior")
	w.AccountStatus = domain.LinkedAccountStatusCreated
	wallets := &stubWallets{wallet: w}
	gw := &stubGateway{}
	svc := provisioning.NewService(wallets, gw)

	_, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)

	assert.Equal(t, 0, gw.createCalls)
	assert.Equal(t, 0, gw.productCalls, "stored product config must be reused")
	assert.Equal(t, 1, gw.updateCalls)
	assert.Equal(t, 1, gw.activateCalls)
}

func TestProvision_CreateFailureMarksWalletFailed(t *testing.T) {
	ownerID := uuid.New()
	wallets := &stubWallets{wallet: walletWithBank(ownerID)}
	gw := &stubGateway{
		createErr: &gateway.APIError{StatusCode: http.StatusBadRequest, Code: "invalid_contact", Description: "contact rejected"},
	}
	svc := provisioning.NewService(wallets, gw)

	_, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.Error(t, err)

	assert.Equal(t, domain.LinkedAccountStatusFailed, wallets.wallet.AccountStatus)
	assert.Equal(t, 0, gw.stakeholderCalls, "failure must abort the sequence")
}

func TestProvision_FailedStateDeletesStaleAccount(t *testing.T) {
	ownerID := uuid.New()
	w := walletWithBank(ownerID)
	w.LinkedAccountID = strPtr("acc_stale")
	w.AccountStatus = domain.LinkedAccountStatusFailed
	wallets := &stubWallets{wallet: w}
	gw := &stubGateway{}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.deleteCalls, "stale remote account must be removed first")
	assert.Equal(t, 1, gw.createCalls)
	require.NotNil(t, wallet.LinkedAccountID)
	assert.Equal(t, "acc_stub", *wallet.LinkedAccountID)
}

func TestProvision_EmailConflictRetriesWithTaggedAddress(t *testing.T) {
	ownerID := uuid.New()
	wallets := &stubWallets{wallet: walletWithBank(ownerID)}
	gw := &stubGateway{
		createErr:     &gateway.APIError{StatusCode: http.StatusConflict, Code: "already_exists", Description: "email taken"},
		createErrOnce: true,
	}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)

	assert.Equal(t, 2, gw.createCalls)
	assert.NotEqual(t, testProfile.Email, gw.lastCreateReq.Email)
	assert.Contains(t, gw.lastCreateReq.Email, "+")
	assert.Contains(t, gw.lastCreateReq.Email, "@test.com")
	assert.Equal(t, domain.LinkedAccountStatusActivated, wallet.AccountStatus)
}

func TestProvision_StakeholderFailureContinues(t *testing.T) {
	ownerID := uuid.New()
	wallets := &stubWallets{wallet: walletWithBank(ownerID)}
	gw := &stubGateway{
		stakeholderErr: &gateway.APIError{StatusCode: http.StatusBadRequest, Code: "bad_request", Description: "kyc pending"},
	}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err, "stakeholder setup is best-effort")

	assert.Equal(t, 1, gw.productCalls, "flow must continue past the stakeholder step")
	assert.Equal(t, 1, gw.activateCalls)
	assert.Equal(t, domain.LinkedAccountStatusActivated, wallet.AccountStatus)
}

func TestProvision_StakeholderConflictIsSuccess(t *testing.T) {
	ownerID := uuid.New()
	wallets := &stubWallets{wallet: walletWithBank(ownerID)}
	gw := &stubGateway{
		stakeholderErr: &gateway.APIError{StatusCode: http.StatusConflict, Code: "already_exists", Description: "stakeholder exists"},
	}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkedAccountStatusActivated, wallet.AccountStatus)
}

func TestProvision_RejectsConcurrentRuns(t *testing.T) {
	ownerID := uuid.New()
	wallets := &stubWallets{wallet: walletWithBank(ownerID)}
	gw := &stubGateway{
		enteredCreate: make(chan struct{}, 1),
		blockCreate:   make(chan struct{}),
	}
	svc := provisioning.NewService(wallets, gw)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Provision(context.Background(), ownerID, testProfile)
		done <- err
	}()

	// Wait for the first run to reach the gateway while holding the lock.
	<-gw.enteredCreate

	_, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.ErrorIs(t, err, domain.ErrProvisioningInFlight)

	close(gw.blockCreate)
	require.NoError(t, <-done)
}

func TestProvision_MissingBankDetails(t *testing.T) {
	ownerID := uuid.New()
	w := walletWithBank(ownerID)
	w.AccountNumber = nil
	wallets := &stubWallets{wallet: w}
	svc := provisioning.NewService(wallets, &stubGateway{})

	_, err := svc.Provision(context.Background(), ownerID, testProfile)
	assert.ErrorIs(t, err, domain.ErrBankDetailsMissing)
}

func TestProvision_AlreadyActivatedIsNoOp(t *testing.T) {
	ownerID := uuid.New()
	w := walletWithBank(ownerID)
	w.LinkedAccountID = strPtr("acc_live")
	w.AccountStatus = domain.LinkedAccountStatusActivated
	wallets := &stubWallets{wallet: w}
	gw := &stubGateway{}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.Provision(context.Background(), ownerID, testProfile)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkedAccountStatusActivated, wallet.AccountStatus)
	assert.Equal(t, 0, gw.createCalls)
	assert.Equal(t, 0, gw.activateCalls)
}

func TestSyncAccountStatus(t *testing.T) {
	ownerID := uuid.New()
	w := walletWithBank(ownerID)
	w.LinkedAccountID = strPtr("acc_live")
	w.ProductConfigID = strPtr("prd_live")
	w.AccountStatus = domain.LinkedAccountStatusActivated
	wallets := &stubWallets{wallet: w}
	gw := &stubGateway{accountStatus: "suspended"}
	svc := provisioning.NewService(wallets, gw)

	wallet, err := svc.SyncAccountStatus(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkedAccountStatusSuspended, wallet.AccountStatus)
	assert.Equal(t, domain.LinkedAccountStatusSuspended, wallets.wallet.AccountStatus)
}
