package ledger

import "github.com/shopspring/decimal"

// Fees are the trading costs charged by the broker and the exchange.
type Fees struct {
	CommissionRate float64 `yaml:"commission_rate" mapstructure:"commission_rate"`
	MinCommission  float64 `yaml:"min_commission" mapstructure:"min_commission"`
	StampDutyRate  float64 `yaml:"stamp_duty_rate" mapstructure:"stamp_duty_rate"`
}

// BrokerCommission is amount × CommissionRate, rounded to cents and floored at
// MinCommission. Non-positive amounts pay nothing.
func (f Fees) BrokerCommission(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	c := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(f.CommissionRate)).Round(2)
	c = decimal.Max(c, decimal.NewFromFloat(f.MinCommission))
	return c.InexactFloat64()
}

// StampDuty is charged on the sell side only.
func (f Fees) StampDuty(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(f.StampDutyRate)).Round(2).InexactFloat64()
}

// SellCosts is commission plus stamp duty on proceeds.
func (f Fees) SellCosts(proceeds float64) float64 {
	return f.BrokerCommission(proceeds) + f.StampDuty(proceeds)
}

// NetReturn is the realized return of a round trip after every fee, as a
// fraction of the original cost.
func (f Fees) NetReturn(cost, proceeds float64) float64 {
	if cost <= 0 {
		return 0
	}
	net := proceeds - f.SellCosts(proceeds) - cost - f.BrokerCommission(cost)
	return net / cost
}
