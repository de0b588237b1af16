package domain

import (
	"time"

	"github.com/google/uuid"
)

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusFailed    SaleStatus = "failed"
)

// Sale is the minimal record linking a booking or media purchase to its
// gateway identifiers. Webhook reconciliation locates sales by
// GatewayOrderID and uses Status as the idempotency gate: a completed sale
// is never credited again.
type Sale struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	ServiceType      ServiceType
	ReferenceType    ReferenceType
	ReferenceID      string
	GrossAmount      int64
	CategoryOverride bool
	GatewayOrderID   string
	GatewayPaymentID *string
	TransferID       *string
	Status           SaleStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
