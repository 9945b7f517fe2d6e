package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/indicators"
	"github.com/rustyeddy/tradesim/sim"
)

func TestNoopStrategy(t *testing.T) {
	strat := NoopStrategy{}
	_, ok := strat.Buy(sim.Row{})
	assert.False(t, ok)
	assert.False(t, strat.Close(sim.Row{}, broker.Position{}))
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Names(), "noop")
	assert.Contains(t, Names(), "ma-cross")

	s, err := New(" MA-Cross ", Params{"fast": 10, "slow": 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"ma10", "ma30"}, s.Indicators())

	_, err = New("ma-cross", Params{"fast": 30, "slow": 10})
	assert.Error(t, err)

	_, err = New("nope", nil)
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestMACrossSignals(t *testing.T) {
	s, err := NewMACross(5, 20)
	require.NoError(t, err)

	w, ok := s.Buy(sim.Row{Values: map[string]float64{"ma5": 11, "ma20": 10}})
	assert.True(t, ok)
	assert.InDelta(t, 0.1, w, 1e-9)

	_, ok = s.Buy(sim.Row{Values: map[string]float64{"ma5": 9, "ma20": 10}})
	assert.False(t, ok)
	_, ok = s.Buy(sim.Row{Values: map[string]float64{"ma5": 9}})
	assert.False(t, ok)

	assert.True(t, s.Close(sim.Row{Values: map[string]float64{"ma5": 9, "ma20": 10}}, broker.Position{}))
	assert.False(t, s.Close(sim.Row{Values: map[string]float64{"ma5": 11, "ma20": 10}}, broker.Position{}))
}

func TestDefaultIndicatorsResolveForStrategies(t *testing.T) {
	reg, err := indicators.NewBuilder().Add(DefaultIndicators()...).Build()
	require.NoError(t, err)

	s, err := New("ma-cross", nil)
	require.NoError(t, err)
	defs, err := reg.Resolve(s.Indicators()...)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	defs, err = reg.Resolve("macd")
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "macd", defs[2].Name)
}

func TestMACrossTrendFilter(t *testing.T) {
	s, err := New("ma-cross", Params{"fast": 5, "slow": 20, "min_adx": 25})
	require.NoError(t, err)
	assert.Equal(t, []string{"ma5", "ma20", "adx14"}, s.Indicators())

	_, ok := s.Buy(sim.Row{Values: map[string]float64{"ma5": 11, "ma20": 10, "adx14": 20}})
	assert.False(t, ok)
	_, ok = s.Buy(sim.Row{Values: map[string]float64{"ma5": 11, "ma20": 10}})
	assert.False(t, ok)
	w, ok := s.Buy(sim.Row{Values: map[string]float64{"ma5": 11, "ma20": 10, "adx14": 30}})
	assert.True(t, ok)
	assert.InDelta(t, 0.1, w, 1e-9)

	reg, err := indicators.NewBuilder().Add(DefaultIndicators()...).Build()
	require.NoError(t, err)
	defs, err := reg.Resolve(s.Indicators()...)
	require.NoError(t, err)
	assert.Len(t, defs, 3)

	_, err = New("ma-cross", Params{"min_adx": 25, "adx_period": 0})
	assert.Error(t, err)
}
