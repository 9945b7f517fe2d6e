package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradesim/market"
)

func trendBars(n int) []market.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = market.Bar{Code: "T", Time: t0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return bars
}

func TestATRSeries(t *testing.T) {
	high := []float64{101, 101, 101, 101, 101}
	low := []float64{99, 99, 99, 99, 99}
	cls := []float64{100, 100, 100, 100, 100}

	atr := ATRSeries(high, low, cls, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(atr[i]), "row %d", i)
	}
	assert.InDelta(t, 2.0, atr[3], 1e-9)
	assert.InDelta(t, 2.0, atr[4], 1e-9)

	// A gap from the previous close widens the true range.
	atr = ATRSeries([]float64{11, 21}, []float64{9, 19}, []float64{10, 20}, 1)
	assert.InDelta(t, 11.0, atr[1], 1e-9)

	assert.True(t, math.IsNaN(ATRSeries(high, low, cls, 10)[4]))
}

func TestADXSeriesOnSteadyUptrend(t *testing.T) {
	f := NewFrame("T", trendBars(30))
	adx, pdi, mdi := ADXSeries(f.MustColumn("high"), f.MustColumn("low"), f.MustColumn("close"), 5)

	assert.True(t, math.IsNaN(pdi[5]))
	assert.InDelta(t, 50.0, pdi[6], 1e-9)
	assert.InDelta(t, 0.0, mdi[6], 1e-9)

	assert.True(t, math.IsNaN(adx[9]))
	for i := 10; i < 30; i++ {
		assert.InDelta(t, 100.0, adx[i], 1e-9, "row %d", i)
	}
}

func TestVolatilityDefinitionsThroughRegistry(t *testing.T) {
	reg, err := NewBuilder().Add(ATR(5), ADX(5), MA(5)).Build()
	require.NoError(t, err)

	// pdi5 is an extra output of adx5, so asking for it pulls in ADX only.
	defs, err := reg.Resolve("pdi5")
	require.NoError(t, err)
	assert.Equal(t, []string{"adx5"}, names(defs))

	defs, err = reg.Resolve("adx5", "atr5")
	require.NoError(t, err)

	f := NewFrame("T", trendBars(30))
	require.NoError(t, f.Apply(defs))
	assert.Equal(t, 20, f.Len())
	assert.InDelta(t, 100.0, f.Value("adx5", 0), 1e-9)
	assert.InDelta(t, 2.0, f.Value("atr5", 0), 1e-9)
	assert.InDelta(t, 50.0, f.Value("pdi5", 0), 1e-9)
}
