package indicators

import (
	"fmt"
	"math"
)

// SMA returns the simple moving average of src. The first period-1 values
// are NaN.
func SMA(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range src {
		sum += v
		if i >= period {
			sum -= src[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries returns the exponential moving average of src, seeded with the
// SMA of the first period values.
func EMASeries(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	if period <= 0 || len(src) < period {
		return out
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += src[i]
	}
	ema := sma / float64(period)
	out[period-1] = ema

	for i := period; i < len(src); i++ {
		ema = (src[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// MA declares "ma<period>" over the close column.
func MA(period int) Definition {
	name := fmt.Sprintf("ma%d", period)
	return Definition{
		Name:         name,
		Predecessors: []string{"close"},
		DropIfNull:   true,
		Compute: func(f *Frame) (map[string][]float64, error) {
			if period <= 0 {
				return nil, fmt.Errorf("period must be positive, got %d", period)
			}
			return map[string][]float64{name: SMA(f.MustColumn("close"), period)}, nil
		},
	}
}

// EMA declares "ema<period>" over the close column.
func EMA(period int) Definition {
	name := fmt.Sprintf("ema%d", period)
	return Definition{
		Name:         name,
		Predecessors: []string{"close"},
		DropIfNull:   true,
		Compute: func(f *Frame) (map[string][]float64, error) {
			if period <= 0 {
				return nil, fmt.Errorf("period must be positive, got %d", period)
			}
			return map[string][]float64{name: EMASeries(f.MustColumn("close"), period)}, nil
		},
	}
}

// Spread declares name = a - b over two existing columns.
func Spread(name, a, b string) Definition {
	return Definition{
		Name:         name,
		Predecessors: []string{a, b},
		Compute: func(f *Frame) (map[string][]float64, error) {
			x, y := f.MustColumn(a), f.MustColumn(b)
			out := make([]float64, len(x))
			for i := range x {
				out[i] = x[i] - y[i]
			}
			return map[string][]float64{name: out}, nil
		},
	}
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
