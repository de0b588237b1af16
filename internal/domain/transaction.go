package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ServiceType string

const (
	ServiceTypeEvent ServiceType = "event"
	ServiceTypeMedia ServiceType = "media"
)

func (s ServiceType) IsValid() bool {
	return s == ServiceTypeEvent || s == ServiceTypeMedia
}

type TransactionType string

const (
	TransactionTypePendingCredit      TransactionType = "pending_credit"
	TransactionTypeCredit             TransactionType = "credit"
	TransactionTypeDebit              TransactionType = "debit"
	TransactionTypePlatformFee        TransactionType = "platform_fee"
	TransactionTypePendingToAvailable TransactionType = "pending_to_available"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

type ReferenceType string

const (
	ReferenceTypeBooking    ReferenceType = "booking"
	ReferenceTypePurchase   ReferenceType = "purchase"
	ReferenceTypeRefund     ReferenceType = "refund"
	ReferenceTypeWithdrawal ReferenceType = "withdrawal"
)

// Transaction is one immutable money movement. Promotion of a matured
// pending_credit is recorded as a separate pending_to_available row whose
// SourceTransactionID points at the original; the original row is never
// rewritten.
type Transaction struct {
	ID                  uuid.UUID
	WalletID            uuid.UUID
	OwnerID             uuid.UUID
	Type                TransactionType
	Amount              int64
	PlatformFee         int64
	NetAmount           int64
	Status              TransactionStatus
	ServiceType         ServiceType
	ReferenceType       ReferenceType
	ReferenceID         string
	AvailableAt         *time.Time
	SourceTransactionID *uuid.UUID
	TransferID          *string
	Metadata            json.RawMessage
	CreatedAt           time.Time
}
