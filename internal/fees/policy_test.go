package fees_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/fees"
)

type stubSettings struct {
	values map[string]decimal.Decimal
}

func (s *stubSettings) Get(_ context.Context, key string) (*domain.FeeSetting, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.FeeSetting{Key: key, Percentage: v}, nil
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		gross   int64
		pct     decimal.Decimal
		wantFee int64
		wantNet int64
	}{
		{"twenty percent", 1000, decimal.NewFromInt(20), 200, 800},
		{"ten percent", 1000, decimal.NewFromInt(10), 100, 900},
		{"rounds half up", 999, decimal.NewFromInt(20), 200, 799},
		{"fractional percentage", 1000, decimal.RequireFromString("12.5"), 125, 875},
		{"zero percent", 1000, decimal.Zero, 0, 1000},
		{"hundred percent", 1000, decimal.NewFromInt(100), 1000, 0},
		{"tiny amount", 1, decimal.NewFromInt(20), 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fee, net := fees.Split(tc.gross, tc.pct)
			assert.Equal(t, tc.wantFee, fee)
			assert.Equal(t, tc.wantNet, net)
			assert.Equal(t, tc.gross, fee+net, "fee and net must sum to gross")
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	p := fees.NewPolicy(&stubSettings{values: map[string]decimal.Decimal{}})
	ctx := context.Background()

	pct, err := p.Resolve(ctx, domain.ServiceTypeEvent, false)
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.NewFromInt(20)))

	pct, err = p.Resolve(ctx, domain.ServiceTypeMedia, false)
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.NewFromInt(20)))
}

func TestResolve_ConfiguredSetting(t *testing.T) {
	p := fees.NewPolicy(&stubSettings{values: map[string]decimal.Decimal{
		domain.FeeSettingKeyEvent: decimal.NewFromInt(25),
		domain.FeeSettingKeyMedia: decimal.NewFromInt(15),
	}})
	ctx := context.Background()

	pct, err := p.Resolve(ctx, domain.ServiceTypeEvent, false)
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.NewFromInt(25)))

	pct, err = p.Resolve(ctx, domain.ServiceTypeMedia, false)
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.NewFromInt(15)))
}

func TestResolve_CategoryOverride(t *testing.T) {
	p := fees.NewPolicy(&stubSettings{values: map[string]decimal.Decimal{
		domain.FeeSettingKeyEvent: decimal.NewFromInt(25),
	}})
	ctx := context.Background()

	// The concessional rate beats the configured percentage for events.
	pct, err := p.Resolve(ctx, domain.ServiceTypeEvent, true)
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.NewFromInt(10)))

	// Media sales ignore the override flag.
	pct, err = p.Resolve(ctx, domain.ServiceTypeMedia, true)
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.NewFromInt(20)))
}

func TestResolve_InvalidServiceType(t *testing.T) {
	p := fees.NewPolicy(&stubSettings{values: map[string]decimal.Decimal{}})

	_, err := p.Resolve(context.Background(), domain.ServiceType("subscription"), false)
	assert.ErrorIs(t, err, domain.ErrInvalidServiceType)
}
