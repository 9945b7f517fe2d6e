package broker

import (
	"fmt"
	"time"
)

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusInvalid   Status = "invalid"
	StatusUnknown   Status = "unknown"
)

// Terminal reports whether the broker will not change the order again.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusInvalid:
		return true
	}
	return false
}

// Tag keys carried on orders.
const (
	TagCreatedAt = "created_at"
	TagReason    = "reason"
)

// Order is a request to trade. ID is assigned by the broker on placement and
// is empty before that; ClientID keys the order until then.
type Order struct {
	ClientID  string            `json:"client_id"`
	ID        string            `json:"id,omitempty"`
	Code      string            `json:"code"`
	Direction Direction         `json:"direction"`
	Price     float64           `json:"price"`
	Volume    int64             `json:"volume"`
	Status    Status            `json:"status"`
	Tags      map[string]string `json:"tags,omitempty"`

	// Set only once Status is filled.
	FilledPrice  float64 `json:"filled_price,omitempty"`
	FilledVolume int64   `json:"filled_volume,omitempty"`
}

// Key is the id the order is cached under.
func (o Order) Key() string {
	if o.ID != "" {
		return o.ID
	}
	return o.ClientID
}

// CreatedAt parses the created_at tag. The zero time is returned when the tag
// is missing or malformed.
func (o Order) CreatedAt() time.Time {
	s, ok := o.Tags[TagCreatedAt]
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Amount is the requested cash value of the order.
func (o Order) Amount() float64 {
	return o.Price * float64(o.Volume)
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %d@%.4f [%s]", o.Direction, o.Code, o.Volume, o.Price, o.Status)
}

// Position is a holding in one instrument. Volume - AvailableVolume is
// reserved against outstanding sell orders.
type Position struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	EntryPrice      float64   `json:"entry_price"`
	Volume          int64     `json:"volume"`
	AvailableVolume int64     `json:"available_volume"`
	LatestPrice     float64   `json:"latest_price"`
	OpenTime        time.Time `json:"open_time"`
	BuyCommission   float64   `json:"buy_commission"`
}

func (p Position) Cost() float64        { return p.EntryPrice * float64(p.Volume) }
func (p Position) MarketValue() float64 { return p.LatestPrice * float64(p.Volume) }

// Valid checks the position volume invariants.
func (p Position) Valid() error {
	if p.Volume < 0 {
		return fmt.Errorf("position %s: negative volume %d", p.Code, p.Volume)
	}
	if p.AvailableVolume < 0 || p.AvailableVolume > p.Volume {
		return fmt.Errorf("position %s: available volume %d outside [0, %d]", p.Code, p.AvailableVolume, p.Volume)
	}
	return nil
}

// Account is the cash side of the book.
type Account struct {
	FreeCash    float64 `json:"free_cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`
}

func (a Account) TotalAssetValue() float64 {
	return a.FreeCash + a.FrozenCash + a.MarketValue
}
