// Package indicators orders the computation of derived technical indicators.
//
// Indicators are declared once at startup through a Builder. Each declaration
// names the columns it reads (predecessors), the columns it writes (outputs)
// and a compute function. The resulting Registry is immutable; Resolve turns
// a set of wanted columns into a dependency-respecting execution order.
package indicators

import (
	"errors"
)

var (
	ErrCyclicDependency   = errors.New("cyclic indicator dependency")
	ErrUnknownIndicator   = errors.New("unknown indicator")
	ErrDuplicateIndicator = errors.New("duplicate indicator")
	ErrBadOutput          = errors.New("bad indicator output")
)

// BaseColumns are the raw bar columns every Frame starts with. Predecessors
// may name them without declaring them.
var BaseColumns = []string{"open", "high", "low", "close", "volume"}

// ComputeFunc computes an indicator from the columns already present in the
// frame. It returns one series per declared output, each as long as the frame.
// Missing values are NaN.
type ComputeFunc func(f *Frame) (map[string][]float64, error)

// Definition declares one indicator.
type Definition struct {
	Name         string
	Predecessors []string

	// Outputs lists the columns produced. Empty means a single column named
	// after the indicator. Outputs other than Name become graph nodes that
	// downstream indicators may depend on directly.
	Outputs []string

	// DropIfNull drops frame rows where any output is NaN (warmup rows).
	DropIfNull bool

	Compute ComputeFunc
}

// OutputNames returns the columns this indicator writes.
func (d Definition) OutputNames() []string {
	if len(d.Outputs) == 0 {
		return []string{d.Name}
	}
	return d.Outputs
}

// extraOutputs returns the outputs that are not the indicator's own name.
func (d Definition) extraOutputs() []string {
	var out []string
	for _, o := range d.OutputNames() {
		if o != d.Name {
			out = append(out, o)
		}
	}
	return out
}
