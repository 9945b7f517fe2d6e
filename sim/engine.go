// Package sim replays history through a strategy, a ledger and a trade book.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/indicators"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/risk"
)

// Options configure one simulation run.
type Options struct {
	Policy   risk.Policy
	Exits    Exits
	Slippage Slippage

	// EntryJitter raises each entry price by a uniform fraction in
	// [0, EntryJitter).
	EntryJitter float64

	// Seed drives every random draw. Zero seeds from the clock.
	Seed int64
}

func (o Options) Validate() error {
	if o.Policy.LotSize <= 0 {
		return fmt.Errorf("sim: lot size must be positive")
	}
	if o.Exits.StopLoss < 0 || o.Exits.StopLoss >= 1 || o.Exits.TakeProfit < 0 {
		return fmt.Errorf("sim: stop_loss must be in [0, 1) and take_profit >= 0")
	}
	if o.Exits.TieBreak != "" {
		if err := o.Exits.TieBreak.Validate(); err != nil {
			return fmt.Errorf("sim: %w", err)
		}
	}
	if o.EntryJitter < 0 || o.EntryJitter >= 1 {
		return fmt.Errorf("sim: entry jitter must be in [0, 1)")
	}
	return o.Slippage.Validate()
}

// Result summarizes a run.
type Result struct {
	Strategy    string
	Start       time.Time
	End         time.Time
	Days        int
	Steps       int
	StartValue  float64
	EndValue    float64
	Return      float64
	Opened      int
	Closed      int
	Wins        int
	Losses      int
	StopLosses  int
	TakeProfits int
}

type Engine struct {
	opts  Options
	strat Strategy
	book  *journal.TradeBook
	led   *ledger.Ledger
	rng   *rand.Rand
	log   *zap.Logger

	res Result
}

func NewEngine(opts Options, strat Strategy, led *ledger.Ledger, book *journal.TradeBook, log *zap.Logger) (*Engine, error) {
	if strat == nil {
		return nil, errors.New("sim: Strategy is required")
	}
	if led == nil {
		return nil, errors.New("sim: Ledger is required")
	}
	if book == nil {
		return nil, errors.New("sim: TradeBook is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Exits.TieBreak == "" {
		opts.Exits.TieBreak = TakeProfitFirst
	}
	if opts.Slippage.Model == "" {
		opts.Slippage.Model = SlippageNone
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		opts:  opts,
		strat: strat,
		book:  book,
		led:   led,
		rng:   rand.New(rand.NewSource(seed)),
		log:   log.Named("sim").With(zap.String("strategy", strat.Name())),
	}, nil
}

// step is every row sharing one timestamp.
type step struct {
	t    time.Time
	rows []Row
}

type day struct {
	date  time.Time
	steps []step
}

// Run replays daily frames, one step per timestamp.
func (e *Engine) Run(ctx context.Context, frames []*indicators.Frame) (Result, error) {
	var rows []Row
	for _, f := range frames {
		for i := 0; i < f.Len(); i++ {
			rows = append(rows, Row{Code: f.Code, Time: f.Times[i], Bar: f.Bars[i], Values: f.Values(i)})
		}
	}
	return e.run(ctx, groupDays(rows))
}

// RunIntraday steps through intraday bars while reading signals from daily
// frames. A day's signals are the latest daily row before that day. An
// instrument with no intraday bars on a day is neither entered nor exited
// that day.
func (e *Engine) RunIntraday(ctx context.Context, frames []*indicators.Frame, intraday map[string][]market.Bar) (Result, error) {
	var rows []Row
	for _, f := range frames {
		bars := intraday[f.Code]
		if len(bars) == 0 {
			e.log.Warn("no intraday bars, instrument skipped", zap.String("code", f.Code))
			continue
		}
		bars = append([]market.Bar(nil), bars...)
		market.SortBars(bars)

		i := 0 // last daily row before the bar's day
		for _, b := range bars {
			d := market.Day(b.Time)
			for i < f.Len() && f.Times[i].Before(d) {
				i++
			}
			if i == 0 {
				continue
			}
			rows = append(rows, Row{Code: f.Code, Time: b.Time, Bar: b, Values: f.Values(i - 1)})
		}
	}
	return e.run(ctx, groupDays(rows))
}

func groupDays(rows []Row) []day {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Time.Equal(rows[j].Time) {
			return rows[i].Time.Before(rows[j].Time)
		}
		return rows[i].Code < rows[j].Code
	})

	var days []day
	for _, r := range rows {
		d := market.Day(r.Time)
		if len(days) == 0 || !days[len(days)-1].date.Equal(d) {
			days = append(days, day{date: d})
		}
		cur := &days[len(days)-1]
		if n := len(cur.steps); n == 0 || !cur.steps[n-1].t.Equal(r.Time) {
			cur.steps = append(cur.steps, step{t: r.Time})
		}
		last := &cur.steps[len(cur.steps)-1]
		last.rows = append(last.rows, r)
	}
	return days
}

func (e *Engine) run(ctx context.Context, days []day) (Result, error) {
	e.res = Result{
		Strategy:   e.strat.Name(),
		StartValue: e.led.TotalAssetValue(),
	}
	if len(days) > 0 {
		e.res.Start = days[0].steps[0].t
		last := days[len(days)-1]
		e.res.End = last.steps[len(last.steps)-1].t
	}
	e.log.Info("run started",
		zap.Int("days", len(days)),
		zap.Float64("start_value", e.res.StartValue))

	for _, d := range days {
		if err := e.runDay(ctx, d); err != nil {
			var ie *ledger.InvariantError
			if errors.As(err, &ie) {
				e.log.Error("invariant violated, run aborted", zap.Error(err))
			}
			return e.finish(), err
		}
	}

	res := e.finish()
	e.log.Info("run finished",
		zap.Float64("end_value", res.EndValue),
		zap.Float64("return", res.Return),
		zap.Int("opened", res.Opened),
		zap.Int("closed", res.Closed))
	return res, nil
}

func (e *Engine) finish() Result {
	e.res.EndValue = e.led.TotalAssetValue()
	if e.res.StartValue > 0 {
		e.res.Return = e.res.EndValue/e.res.StartValue - 1
	}
	return e.res
}

func (e *Engine) runDay(ctx context.Context, d day) error {
	e.res.Days++
	e.led.Settle()

	// Opening capitals reflect yesterday's marks.
	if err := e.book.LogOpeningCapitals(ctx, d.steps[0].t, e.led.Account()); err != nil {
		return err
	}
	for _, st := range d.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.step(ctx, st); err != nil {
			return fmt.Errorf("step %s: %w", st.t.Format(time.RFC3339), err)
		}
	}
	last := d.steps[len(d.steps)-1].t
	return e.book.LogClosingCapitals(ctx, last, e.led.Account())
}

func (e *Engine) step(ctx context.Context, st step) error {
	e.res.Steps++

	byCode := make(map[string]Row, len(st.rows))
	for _, r := range st.rows {
		byCode[r.Code] = r
	}
	e.led.UpdateMarks(func(code string) (float64, bool) {
		r, ok := byCode[code]
		return r.Bar.Close, ok
	})

	exited, err := e.exits(ctx, st, byCode)
	if err != nil {
		return err
	}
	opened, err := e.entries(ctx, st, exited)
	if err != nil {
		return err
	}
	if err := e.led.Check(); err != nil {
		return err
	}

	if len(exited) > 0 || opened > 0 {
		return e.book.LogClosingCapitals(ctx, st.t, e.led.Account())
	}
	return nil
}

// exits closes positions that hit a boundary or that the strategy wants out
// of, all in one ledger call. It returns the codes closed.
func (e *Engine) exits(ctx context.Context, st step, byCode map[string]Row) (map[string]struct{}, error) {
	var (
		fills   []ledger.Fill
		actions []journal.Action
	)
	for _, p := range e.led.Positions() {
		r, ok := byCode[p.Code]
		if !ok || p.AvailableVolume < p.Volume {
			continue
		}
		action, price, hit := e.opts.Exits.Check(p, r.Bar, e.rng)
		if !hit {
			if !e.strat.Close(r, p) {
				continue
			}
			action, price = journal.ActionClose, r.Bar.Close
		}
		fills = append(fills, ledger.Fill{Code: p.Code, Price: e.opts.Slippage.Sell(price, e.rng)})
		actions = append(actions, action)
	}
	if len(fills) == 0 {
		return nil, nil
	}

	closed, err := e.led.Sell(st.t, fills)
	if err != nil {
		return nil, err
	}

	exited := make(map[string]struct{}, len(closed))
	for i, c := range closed {
		exited[c.Position.Code] = struct{}{}
		if err := e.book.Close(ctx, c, actions[i]); err != nil {
			return nil, err
		}
		e.res.Closed++
		switch {
		case c.NetReturn > 0:
			e.res.Wins++
		case c.NetReturn < 0:
			e.res.Losses++
		}
		switch actions[i] {
		case journal.ActionStopLoss:
			e.res.StopLosses++
		case journal.ActionTakeProfit:
			e.res.TakeProfits++
		}
		e.log.Debug("position closed",
			zap.String("code", c.Position.Code),
			zap.String("action", string(actions[i])),
			zap.Float64("price", c.ExitPrice),
			zap.Float64("net_return", c.NetReturn))
	}
	return exited, nil
}

// entries opens positions for qualifying rows in one ledger call and returns
// how many were opened.
func (e *Engine) entries(ctx context.Context, st step, exited map[string]struct{}) (int, error) {
	var cands []risk.Candidate
	for _, r := range st.rows {
		if e.led.Holds(r.Code) {
			continue
		}
		if _, ok := exited[r.Code]; ok {
			continue
		}
		weight, ok := e.strat.Buy(r)
		if !ok {
			continue
		}
		price := r.Bar.Close * (1 + e.rng.Float64()*e.opts.EntryJitter)
		cands = append(cands, risk.Candidate{Code: r.Code, Price: price, Weight: weight})
	}
	if len(cands) == 0 {
		return 0, nil
	}

	policy := e.opts.Policy
	cands = risk.Sample(cands, policy.Slots(e.led.Len()), e.rng)
	if len(cands) == 0 {
		return 0, nil
	}

	free := e.led.FreeCash()
	fees := e.led.Fees()
	quotes := risk.Quotes(cands)
	allocs := risk.Allocate(risk.Request{
		Quotes:           quotes,
		Budget:           free - fees.BrokerCommission(free),
		LotSize:          policy.LotSize,
		MinTradeCost:     policy.MinTradeCost,
		MaxPerInstrument: policy.PositionCap(e.led.TotalAssetValue()),
		Rand:             e.rng,
	})

	var positions []broker.Position
	for i, a := range allocs {
		if a.Lots == 0 {
			continue
		}
		positions = append(positions, broker.Position{
			Code:       a.Code,
			EntryPrice: quotes[i].Price,
			Volume:     a.Lots * policy.LotSize,
			OpenTime:   st.t,
		})
	}
	positions = fitCash(positions, free, fees)
	if len(positions) == 0 {
		return 0, nil
	}

	if err := e.led.Buy(st.t, positions); err != nil {
		return 0, err
	}
	for _, p := range positions {
		opened, _ := e.led.Position(p.Code)
		if err := e.book.Open(ctx, st.t, opened); err != nil {
			return 0, err
		}
		e.log.Debug("position opened",
			zap.String("code", p.Code),
			zap.Int64("volume", p.Volume),
			zap.Float64("price", p.EntryPrice))
	}
	e.res.Opened += len(positions)
	return len(positions), nil
}

// fitCash drops the smallest positions until every cost and its own
// commission fit in free cash. Minimum commissions on many small tickets can
// exceed the single reserve taken from the budget.
func fitCash(positions []broker.Position, free float64, fees ledger.Fees) []broker.Position {
	for len(positions) > 0 {
		total := 0.0
		smallest := 0
		for i, p := range positions {
			total += p.Cost() + fees.BrokerCommission(p.Cost())
			if p.Cost() < positions[smallest].Cost() {
				smallest = i
			}
		}
		if total <= free {
			return positions
		}
		positions = append(positions[:smallest], positions[smallest+1:]...)
	}
	return positions
}
