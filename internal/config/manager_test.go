package config

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/pkg/strategyerr"
)

func validScalpingOverrides(cfg *StrategyConfig) {
	cfg.Scalping.Base.Symbol = "BTCUSDT"
	cfg.Scalping.Base.Notional = decimal.NewFromInt(1000)
	cfg.Scalping.Base.MaxPosition = decimal.NewFromInt(5000)
	cfg.Scalping.Base.MaxDailyLoss = decimal.NewFromInt(100)
	cfg.Scalping.PriceSpread = decimal.NewFromInt(10)
}

func TestNewManager_AppliesDefaultsThenOverrides(t *testing.T) {
	m, err := NewManager(KindScalping, validScalpingOverrides)
	require.NoError(t, err)

	cur := m.Current()
	assert.Equal(t, "BTCUSDT", cur.Base().Symbol)
	assert.True(t, cur.Base().MaxDrawdownPercent.Equal(decimal.NewFromInt(5)), "default should survive untouched override fields")
}

func TestNewManager_RejectsInvalidOverride(t *testing.T) {
	_, err := NewManager(KindScalping, func(cfg *StrategyConfig) {
		cfg.Scalping.Base.Symbol = "" // leave invalid
	})
	require.Error(t, err)
	var verr *strategyerr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdate_RejectsImmutableKeyChange(t *testing.T) {
	m, err := NewManager(KindScalping, validScalpingOverrides)
	require.NoError(t, err)

	err = m.Update(func(cfg *StrategyConfig) {
		cfg.Scalping.Base.Symbol = "ETHUSDT"
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, strategyerr.ErrConfigImmutableKey))
	assert.Equal(t, "BTCUSDT", m.Current().Base().Symbol, "live config must be untouched on rejected update")
}

func TestUpdate_AppliesValidMutation(t *testing.T) {
	m, err := NewManager(KindScalping, validScalpingOverrides)
	require.NoError(t, err)

	err = m.Update(func(cfg *StrategyConfig) {
		cfg.Scalping.PriceSpread = decimal.NewFromInt(20)
	})
	require.NoError(t, err)
	assert.True(t, m.Current().Scalping.PriceSpread.Equal(decimal.NewFromInt(20)))
}

func TestUpdate_RollsBackOnValidationFailure(t *testing.T) {
	m, err := NewManager(KindScalping, validScalpingOverrides)
	require.NoError(t, err)

	err = m.Update(func(cfg *StrategyConfig) {
		cfg.Scalping.PriceSpread = decimal.Zero
	})
	require.Error(t, err)
	assert.True(t, m.Current().Scalping.PriceSpread.Equal(decimal.NewFromInt(10)), "live config must roll back")
}
