// Package provisioning drives the split-payment sub-account setup at the
// gateway as a resumable five step sequence. Progress is persisted on the
// wallet after every step, so a crashed or failed run picks up where the
// previous one stopped instead of repeating remote calls.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/gateway"
	"github.com/marketlane/settlement/internal/logging"
)

type walletRepo interface {
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	UpdateProvisioningState(ctx context.Context, id uuid.UUID, linkedAccountID, productConfigID *string, status domain.LinkedAccountStatus) error
}

type gatewayClient interface {
	CreateLinkedAccount(ctx context.Context, req gateway.CreateLinkedAccountRequest) (*gateway.LinkedAccount, error)
	FetchLinkedAccount(ctx context.Context, accountID string) (*gateway.LinkedAccount, error)
	DeleteLinkedAccount(ctx context.Context, accountID string) error
	CreateStakeholder(ctx context.Context, accountID string, req gateway.StakeholderRequest) (*gateway.Stakeholder, error)
	RequestProductConfig(ctx context.Context, accountID string) (*gateway.ProductConfig, error)
	UpdateProductConfig(ctx context.Context, accountID, productID string, req gateway.ProductConfigUpdate) (*gateway.ProductConfig, error)
	SubmitActivation(ctx context.Context, accountID, productID string) (*gateway.ProductConfig, error)
}

// Profile is the vendor identity submitted to the gateway when the
// sub-account is created.
type Profile struct {
	Name    string
	Email   string
	Contact string
}

type Service struct {
	wallets walletRepo
	gw      gatewayClient

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewService(wallets walletRepo, gw gatewayClient) *Service {
	return &Service{
		wallets:  wallets,
		gw:       gw,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Provision walks the wallet through account creation, stakeholder setup,
// product configuration and activation. Only one run per wallet is allowed
// at a time; a second concurrent call returns ErrProvisioningInFlight.
func (s *Service) Provision(ctx context.Context, ownerID uuid.UUID, profile Profile) (*domain.Wallet, error) {
	log := logging.FromContext(ctx)

	wallet, err := s.wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}
	if !wallet.BankDetails().Complete() {
		return nil, fmt.Errorf("Provision: %w", domain.ErrBankDetailsMissing)
	}
	if wallet.AccountStatus == domain.LinkedAccountStatusActivated {
		return wallet, nil
	}
	if profile.Name == "" || profile.Email == "" {
		return nil, fmt.Errorf("Provision: name and email required: %w", domain.ErrInvalidRequest)
	}

	if !s.acquire(wallet.ID) {
		return nil, fmt.Errorf("Provision: %w", domain.ErrProvisioningInFlight)
	}
	defer s.release(wallet.ID)

	accountID, err := s.ensureAccount(ctx, wallet, profile)
	if err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}

	s.ensureStakeholder(ctx, accountID, profile)

	productID, err := s.ensureProductConfig(ctx, wallet, accountID)
	if err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}

	if err := s.configureSettlement(ctx, wallet, accountID, productID); err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}

	status, err := s.activate(ctx, accountID, productID)
	if err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}
	if err := s.wallets.UpdateProvisioningState(ctx, wallet.ID, &accountID, &productID, status); err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}

	log.Info("provisioning completed",
		"wallet_id", wallet.ID,
		"linked_account_id", accountID,
		"account_status", status,
	)

	updated, err := s.wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Provision: %w", err)
	}
	return updated, nil
}

// SyncAccountStatus refreshes the stored account status from the gateway.
// Useful after activation, which the gateway completes asynchronously.
func (s *Service) SyncAccountStatus(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("SyncAccountStatus: %w", err)
	}
	if wallet.LinkedAccountID == nil {
		return nil, fmt.Errorf("SyncAccountStatus: no linked account: %w", domain.ErrNotFound)
	}

	acct, err := s.gw.FetchLinkedAccount(ctx, *wallet.LinkedAccountID)
	if err != nil {
		return nil, fmt.Errorf("SyncAccountStatus: %w", domain.ErrGatewayUnavailable)
	}

	status := mapAccountStatus(acct.Status)
	if status != wallet.AccountStatus {
		if err := s.wallets.UpdateProvisioningState(ctx, wallet.ID, wallet.LinkedAccountID, wallet.ProductConfigID, status); err != nil {
			return nil, fmt.Errorf("SyncAccountStatus: %w", err)
		}
		wallet.AccountStatus = status
	}
	return wallet, nil
}

// ensureAccount is step one: create the sub-account, or reuse the one a
// previous run already created. A wallet stuck in failed state first deletes
// the stale remote account so the gateway does not reject the email as taken.
func (s *Service) ensureAccount(ctx context.Context, wallet *domain.Wallet, profile Profile) (string, error) {
	log := logging.FromContext(ctx)

	if wallet.LinkedAccountID != nil && wallet.AccountStatus != domain.LinkedAccountStatusFailed {
		return *wallet.LinkedAccountID, nil
	}

	if wallet.LinkedAccountID != nil {
		if err := s.retry(ctx, func() error {
			err := s.gw.DeleteLinkedAccount(ctx, *wallet.LinkedAccountID)
			if err != nil && !isNotFound(err) {
				return err
			}
			return nil
		}); err != nil {
			log.Warn("failed to delete stale linked account",
				"wallet_id", wallet.ID,
				"linked_account_id", *wallet.LinkedAccountID,
				"error", err,
			)
		}
		if err := s.wallets.UpdateProvisioningState(ctx, wallet.ID, nil, nil, domain.LinkedAccountStatusNone); err != nil {
			return "", fmt.Errorf("ensureAccount: %w", err)
		}
		wallet.LinkedAccountID = nil
		wallet.ProductConfigID = nil
	}

	acct, err := s.createAccount(ctx, wallet, profile)
	if err != nil {
		if stateErr := s.wallets.UpdateProvisioningState(ctx, wallet.ID, nil, nil, domain.LinkedAccountStatusFailed); stateErr != nil {
			log.Error("failed to mark provisioning failed", "wallet_id", wallet.ID, "error", stateErr)
		}
		return "", fmt.Errorf("ensureAccount: %w", err)
	}

	if err := s.wallets.UpdateProvisioningState(ctx, wallet.ID, &acct.ID, nil, domain.LinkedAccountStatusCreated); err != nil {
		return "", fmt.Errorf("ensureAccount: %w", err)
	}
	wallet.LinkedAccountID = &acct.ID
	wallet.AccountStatus = domain.LinkedAccountStatusCreated
	return acct.ID, nil
}

func (s *Service) createAccount(ctx context.Context, wallet *domain.Wallet, profile Profile) (*gateway.LinkedAccount, error) {
	var acct *gateway.LinkedAccount
	err := s.retry(ctx, func() error {
		a, err := s.gw.CreateLinkedAccount(ctx, gateway.CreateLinkedAccountRequest{
			Name:    profile.Name,
			Email:   profile.Email,
			Contact: profile.Contact,
		})
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err == nil {
		return acct, nil
	}
	if !gateway.IsConflict(err) {
		return nil, err
	}

	// The gateway dedupes accounts by email. Retry once with a tagged
	// address derived from the wallet id.
	tagged := tagEmail(profile.Email, wallet.ID)
	logging.FromContext(ctx).Warn("account email already registered, retrying with tagged address",
		"wallet_id", wallet.ID,
		"email", tagged,
	)
	err = s.retry(ctx, func() error {
		a, err := s.gw.CreateLinkedAccount(ctx, gateway.CreateLinkedAccountRequest{
			Name:    profile.Name,
			Email:   tagged,
			Contact: profile.Contact,
		})
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ensureStakeholder is step two. A conflict means a previous run got here
// already, which is success. Any other failure is logged and the flow
// continues; only account creation is allowed to wedge provisioning.
func (s *Service) ensureStakeholder(ctx context.Context, accountID string, profile Profile) {
	err := s.retry(ctx, func() error {
		_, err := s.gw.CreateStakeholder(ctx, accountID, gateway.StakeholderRequest{
			Name:  profile.Name,
			Email: profile.Email,
		})
		return err
	})
	if err != nil && !gateway.IsConflict(err) {
		logging.FromContext(ctx).Warn("stakeholder creation failed, continuing",
			"linked_account_id", accountID,
			"error", err,
		)
	}
}

// ensureProductConfig is step three: request the route product once and
// remember its id.
func (s *Service) ensureProductConfig(ctx context.Context, wallet *domain.Wallet, accountID string) (string, error) {
	if wallet.ProductConfigID != nil {
		return *wallet.ProductConfigID, nil
	}

	var pc *gateway.ProductConfig
	err := s.retry(ctx, func() error {
		p, err := s.gw.RequestProductConfig(ctx, accountID)
		if err != nil {
			return err
		}
		pc = p
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ensureProductConfig: %w", err)
	}

	if err := s.wallets.UpdateProvisioningState(ctx, wallet.ID, &accountID, &pc.ID, wallet.AccountStatus); err != nil {
		return "", fmt.Errorf("ensureProductConfig: %w", err)
	}
	wallet.ProductConfigID = &pc.ID
	return pc.ID, nil
}

// configureSettlement is step four: push the vendor's settlement bank
// details into the product config. The gateway treats this as an upsert.
func (s *Service) configureSettlement(ctx context.Context, wallet *domain.Wallet, accountID, productID string) error {
	bank := wallet.BankDetails()
	err := s.retry(ctx, func() error {
		_, err := s.gw.UpdateProductConfig(ctx, accountID, productID, gateway.ProductConfigUpdate{
			AccountName:   bank.AccountName,
			AccountNumber: bank.AccountNumber,
			IFSC:          bank.IFSC,
			TNCAccepted:   true,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("configureSettlement: %w", err)
	}
	return nil
}

// activate is step five: submit for activation, then read back the live
// account status since activation may complete immediately or stay under
// review.
func (s *Service) activate(ctx context.Context, accountID, productID string) (domain.LinkedAccountStatus, error) {
	err := s.retry(ctx, func() error {
		_, err := s.gw.SubmitActivation(ctx, accountID, productID)
		return err
	})
	if err != nil && !gateway.IsConflict(err) {
		return "", fmt.Errorf("activate: %w", err)
	}

	var acct *gateway.LinkedAccount
	err = s.retry(ctx, func() error {
		a, err := s.gw.FetchLinkedAccount(ctx, accountID)
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("activate: %w", err)
	}
	return mapAccountStatus(acct.Status), nil
}

// retry runs op with exponential backoff for transient failures. Structured
// gateway rejections are not retried; the caller decides how to treat them.
func (s *Service) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		err := op()
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx))
}

func (s *Service) acquire(walletID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[walletID]; ok {
		return false
	}
	s.inFlight[walletID] = struct{}{}
	return true
}

func (s *Service) release(walletID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, walletID)
}

func mapAccountStatus(remote string) domain.LinkedAccountStatus {
	switch remote {
	case "activated":
		return domain.LinkedAccountStatusActivated
	case "suspended":
		return domain.LinkedAccountStatusSuspended
	default:
		return domain.LinkedAccountStatusCreated
	}
}

func isNotFound(err error) bool {
	var apiErr *gateway.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// tagEmail inserts a plus tag before the @ so the address stays deliverable
// but unique per wallet.
func tagEmail(email string, walletID uuid.UUID) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	tag := strings.ReplaceAll(walletID.String(), "-", "")[:8]
	return email[:at] + "+" + tag + email[at:]
}
