package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/tradesim/market"
)

// Frame holds one instrument's bars as aligned named columns.
type Frame struct {
	Code  string
	Times []time.Time
	Bars  []market.Bar

	cols map[string][]float64
}

// NewFrame builds a frame from bars that all belong to one instrument and are
// sorted by time.
func NewFrame(code string, bars []market.Bar) *Frame {
	f := &Frame{
		Code:  code,
		Times: make([]time.Time, len(bars)),
		Bars:  append([]market.Bar(nil), bars...),
		cols:  make(map[string][]float64),
	}
	open := make([]float64, len(bars))
	high := make([]float64, len(bars))
	low := make([]float64, len(bars))
	cls := make([]float64, len(bars))
	vol := make([]float64, len(bars))
	for i, b := range bars {
		f.Times[i] = b.Time
		open[i], high[i], low[i], cls[i], vol[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}
	f.cols["open"] = open
	f.cols["high"] = high
	f.cols["low"] = low
	f.cols["close"] = cls
	f.cols["volume"] = vol
	return f
}

// Len is the number of rows.
func (f *Frame) Len() int { return len(f.Times) }

// Column returns a column by name.
func (f *Frame) Column(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// MustColumn is Column for compute functions whose predecessors are
// guaranteed by the registry.
func (f *Frame) MustColumn(name string) []float64 {
	c, ok := f.cols[name]
	if !ok {
		panic(fmt.Sprintf("indicators: column %q missing from frame %s", name, f.Code))
	}
	return c
}

// Value returns column name at row i. Missing columns read as NaN.
func (f *Frame) Value(name string, i int) float64 {
	c, ok := f.cols[name]
	if !ok || i < 0 || i >= len(c) {
		return math.NaN()
	}
	return c[i]
}

// Values returns every column at row i.
func (f *Frame) Values(i int) map[string]float64 {
	out := make(map[string]float64, len(f.cols))
	for name, c := range f.cols {
		out[name] = c[i]
	}
	return out
}

// Apply runs the definitions in the given order (normally the output of
// Registry.Resolve). Each compute must return every declared output with the
// frame's length. Rows where a DropIfNull indicator produced NaN are removed
// afterwards.
func (f *Frame) Apply(defs []Definition) error {
	var dropCols []string
	for _, d := range defs {
		out, err := d.Compute(f)
		if err != nil {
			return fmt.Errorf("indicator %s on %s: %w", d.Name, f.Code, err)
		}
		for _, name := range d.OutputNames() {
			series, ok := out[name]
			if !ok {
				return fmt.Errorf("%w: %s did not produce %q", ErrBadOutput, d.Name, name)
			}
			if len(series) != f.Len() {
				return fmt.Errorf("%w: %s output %q has %d rows, frame has %d",
					ErrBadOutput, d.Name, name, len(series), f.Len())
			}
			f.cols[name] = series
			if d.DropIfNull {
				dropCols = append(dropCols, name)
			}
		}
	}
	if len(dropCols) > 0 {
		f.dropNull(dropCols)
	}
	return nil
}

func (f *Frame) dropNull(names []string) {
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		ok := true
		for _, n := range names {
			if math.IsNaN(f.cols[n][i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == f.Len() {
		return
	}

	times := make([]time.Time, len(keep))
	bars := make([]market.Bar, len(keep))
	for j, i := range keep {
		times[j] = f.Times[i]
		bars[j] = f.Bars[i]
	}
	f.Times = times
	f.Bars = bars

	for name, c := range f.cols {
		nc := make([]float64, len(keep))
		for j, i := range keep {
			nc[j] = c[i]
		}
		f.cols[name] = nc
	}
}
