package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// SettingsLookup resolves a configured fee percentage by key. Absent keys
// must return domain.ErrNotFound.
type SettingsLookup interface {
	Get(ctx context.Context, key string) (*domain.FeeSetting, error)
}

var (
	defaultEventPct = decimal.NewFromInt(20)
	defaultMediaPct = decimal.NewFromInt(20)

	// Concessional rate applied when the category override flag is set on
	// an event sale, irrespective of the configured percentage.
	concessionalPct = decimal.NewFromInt(10)
)

type Policy struct {
	settings SettingsLookup
}

func NewPolicy(settings SettingsLookup) *Policy {
	return &Policy{settings: settings}
}

// Resolve returns the platform-fee percentage for a sale. Callers must
// resolve at transaction time and store the result on the transaction;
// historical transactions are never recomputed from later settings.
func (p *Policy) Resolve(ctx context.Context, serviceType domain.ServiceType, categoryOverride bool) (decimal.Decimal, error) {
	if !serviceType.IsValid() {
		return decimal.Zero, fmt.Errorf("Resolve: %q: %w", serviceType, domain.ErrInvalidServiceType)
	}

	if categoryOverride && serviceType == domain.ServiceTypeEvent {
		return concessionalPct, nil
	}

	key, fallback := domain.FeeSettingKeyEvent, defaultEventPct
	if serviceType == domain.ServiceTypeMedia {
		key, fallback = domain.FeeSettingKeyMedia, defaultMediaPct
	}

	setting, err := p.settings.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fallback, nil
		}
		return decimal.Zero, fmt.Errorf("Resolve: %w", err)
	}
	return setting.Percentage, nil
}

// Split divides a gross amount into platform fee and vendor net. The fee is
// rounded half-up to a whole minor unit and the net is the exact remainder,
// so fee + net always equals gross.
func Split(gross int64, pct decimal.Decimal) (fee, net int64) {
	g := decimal.NewFromInt(gross)
	fee = g.Mul(pct).Div(decimal.NewFromInt(100)).Round(0).IntPart()
	if fee < 0 {
		fee = 0
	}
	if fee > gross {
		fee = gross
	}
	net = gross - fee
	return fee, net
}
