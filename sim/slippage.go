package sim

import (
	"fmt"
	"math"
	"math/rand"
)

type SlippageModel string

const (
	SlippageNone    SlippageModel = "none"
	SlippageTick    SlippageModel = "tick"
	SlippagePercent SlippageModel = "percent"
	SlippageWeibull SlippageModel = "weibull"
)

// Slippage describes how far an exit fill lands from the signalled price.
type Slippage struct {
	Model SlippageModel `yaml:"model" mapstructure:"model"`

	// tick: a uniform number of ticks in [0, MaxTicks].
	TickSize float64 `yaml:"tick_size" mapstructure:"tick_size"`
	MaxTicks int     `yaml:"max_ticks" mapstructure:"max_ticks"`

	// percent: a uniform fraction of price in [0, MaxPercent).
	// weibull: also caps the draw when positive.
	MaxPercent float64 `yaml:"max_percent" mapstructure:"max_percent"`

	// weibull: fraction of price drawn from Weibull(Shape, Scale).
	Shape float64 `yaml:"shape" mapstructure:"shape"`
	Scale float64 `yaml:"scale" mapstructure:"scale"`
}

func (s Slippage) Validate() error {
	switch s.Model {
	case "", SlippageNone:
	case SlippageTick:
		if s.TickSize <= 0 || s.MaxTicks < 0 {
			return fmt.Errorf("slippage: tick model needs tick_size > 0 and max_ticks >= 0")
		}
	case SlippagePercent:
		if s.MaxPercent < 0 || s.MaxPercent >= 1 {
			return fmt.Errorf("slippage: max_percent must be in [0, 1)")
		}
	case SlippageWeibull:
		if s.Shape <= 0 || s.Scale <= 0 {
			return fmt.Errorf("slippage: weibull model needs shape > 0 and scale > 0")
		}
		if s.MaxPercent < 0 || s.MaxPercent >= 1 {
			return fmt.Errorf("slippage: max_percent must be in [0, 1)")
		}
	default:
		return fmt.Errorf("slippage: unknown model %q", s.Model)
	}
	return nil
}

// Draw returns a non-negative price offset for a fill at price.
func (s Slippage) Draw(price float64, rng *rand.Rand) float64 {
	switch s.Model {
	case SlippageTick:
		return float64(rng.Intn(s.MaxTicks+1)) * s.TickSize
	case SlippagePercent:
		return rng.Float64() * s.MaxPercent * price
	case SlippageWeibull:
		// inverse CDF: scale * (-ln(1-u))^(1/shape)
		frac := s.Scale * math.Pow(-math.Log(1-rng.Float64()), 1/s.Shape)
		if s.MaxPercent > 0 {
			frac = math.Min(frac, s.MaxPercent)
		}
		return frac * price
	}
	return 0
}

// Sell applies the draw against the seller. The fill never drops to zero or
// below.
func (s Slippage) Sell(price float64, rng *rand.Rand) float64 {
	slipped := price - s.Draw(price, rng)
	if slipped <= 0 {
		return price
	}
	return slipped
}
