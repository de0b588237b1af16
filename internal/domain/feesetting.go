package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FeeSettingKeyEvent = "event_fee_percentage"
	FeeSettingKeyMedia = "media_fee_percentage"
)

// FeeSetting is a keyed platform-fee percentage, administered outside the
// ledger. Absent keys fall back to hard-coded defaults in the fees package.
type FeeSetting struct {
	Key        string
	Percentage decimal.Decimal
	UpdatedAt  time.Time
}
