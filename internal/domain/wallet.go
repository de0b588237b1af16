package domain

import (
	"time"

	"github.com/google/uuid"
)

type OwnerKind string

const (
	OwnerKindVendor   OwnerKind = "vendor"
	OwnerKindOperator OwnerKind = "operator"
)

// LinkedAccountStatus tracks the split-payment sub-account lifecycle at the
// gateway. none means provisioning has never been attempted.
type LinkedAccountStatus string

const (
	LinkedAccountStatusNone      LinkedAccountStatus = "none"
	LinkedAccountStatusCreated   LinkedAccountStatus = "created"
	LinkedAccountStatusActivated LinkedAccountStatus = "activated"
	LinkedAccountStatusSuspended LinkedAccountStatus = "suspended"
	LinkedAccountStatusFailed    LinkedAccountStatus = "failed"
)

type BankDetails struct {
	AccountName   string
	AccountNumber string
	IFSC          string
	BankName      string
}

func (b BankDetails) Complete() bool {
	return b.AccountName != "" && b.AccountNumber != "" && b.IFSC != ""
}

// Wallet is the per-owner balance snapshot derived from the transaction log.
// Balance is withdrawable, PendingBalance holds credits inside the settlement
// window. Version guards concurrent balance mutations.
type Wallet struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	OwnerKind       OwnerKind
	Balance         int64
	PendingBalance  int64
	TotalEarnings   int64
	TotalWithdrawn  int64
	Version         int64
	AccountName     *string
	AccountNumber   *string
	IFSC            *string
	BankName        *string
	LinkedAccountID *string
	AccountStatus   LinkedAccountStatus
	ProductConfigID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (w *Wallet) BankDetails() BankDetails {
	return BankDetails{
		AccountName:   strVal(w.AccountName),
		AccountNumber: strVal(w.AccountNumber),
		IFSC:          strVal(w.IFSC),
		BankName:      strVal(w.BankName),
	}
}

func (w *Wallet) HasActiveLinkedAccount() bool {
	return w.LinkedAccountID != nil && w.AccountStatus == LinkedAccountStatusActivated
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
