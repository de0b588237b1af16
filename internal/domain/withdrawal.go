package domain

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

func (s WithdrawalStatus) Terminal() bool {
	switch s {
	case WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusCancelled:
		return true
	default:
		return false
	}
}

// WithdrawalRequest reserves funds the moment it is created: the wallet
// balance is debited up front and refunded only on failure or cancellation.
// Bank fields are a snapshot taken at request time.
type WithdrawalRequest struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	OwnerID       uuid.UUID
	Amount        int64
	AccountName   string
	AccountNumber string
	IFSC          string
	BankName      string
	Status        WithdrawalStatus
	TransferID    *string
	AdminNote     *string
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}
