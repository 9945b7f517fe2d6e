package indicators

import (
	"fmt"
	"math"
)

// ADXSeries is Wilder's Average Directional Index with its directional
// indicators.
//
// True range and directional movement are averaged over bars 1..period, then
// Wilder-smoothed. +DI/-DI start at index period+1. ADX is seeded with the
// mean of the DX values at period+1..2*period and smoothed after that.
func ADXSeries(high, low, cls []float64, period int) (adx, pdi, mdi []float64) {
	n := len(cls)
	adx, pdi, mdi = nanSeries(n), nanSeries(n), nanSeries(n)
	if period <= 0 || n < 2*period+1 {
		return adx, pdi, mdi
	}
	p := float64(period)

	var tr, pdm, mdm, dxSum, avg float64
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		var plus, minus float64
		if up > down && up > 0 {
			plus = up
		}
		if down > up && down > 0 {
			minus = down
		}
		r := trueRange(high, low, cls, i)

		if i <= period {
			tr += r
			pdm += plus
			mdm += minus
			if i == period {
				tr, pdm, mdm = tr/p, pdm/p, mdm/p
			}
			continue
		}

		tr = (tr*(p-1) + r) / p
		pdm = (pdm*(p-1) + plus) / p
		mdm = (mdm*(p-1) + minus) / p

		var pi, mi, dx float64
		if tr > 0 {
			pi, mi = 100*pdm/tr, 100*mdm/tr
		}
		if pi+mi > 0 {
			dx = 100 * math.Abs(pi-mi) / (pi + mi)
		}
		pdi[i], mdi[i] = pi, mi

		switch {
		case i < 2*period:
			dxSum += dx
		case i == 2*period:
			dxSum += dx
			avg = dxSum / p
			adx[i] = avg
		default:
			avg = (avg*(p-1) + dx) / p
			adx[i] = avg
		}
	}
	return adx, pdi, mdi
}

// ADX declares "adx<period>" with the extra outputs "pdi<period>" and
// "mdi<period>".
func ADX(period int) Definition {
	name := fmt.Sprintf("adx%d", period)
	pdiName := fmt.Sprintf("pdi%d", period)
	mdiName := fmt.Sprintf("mdi%d", period)
	return Definition{
		Name:         name,
		Predecessors: []string{"high", "low", "close"},
		Outputs:      []string{name, pdiName, mdiName},
		DropIfNull:   true,
		Compute: func(f *Frame) (map[string][]float64, error) {
			if period <= 0 {
				return nil, fmt.Errorf("period must be positive, got %d", period)
			}
			adx, pdi, mdi := ADXSeries(f.MustColumn("high"), f.MustColumn("low"), f.MustColumn("close"), period)
			return map[string][]float64{name: adx, pdiName: pdi, mdiName: mdi}, nil
		},
	}
}
