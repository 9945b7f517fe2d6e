package risk

import (
	"math"
	"math/rand"
	"sort"
)

// Quote is a candidate instrument and the price it would be bought at.
type Quote struct {
	Code  string
	Price float64
}

// Allocation is the number of lots assigned to one instrument.
type Allocation struct {
	Code string
	Lots int64
}

// Request is the input to Allocate.
type Request struct {
	Quotes       []Quote
	Budget       float64
	LotSize      int64
	MinTradeCost float64

	// MaxPerInstrument caps the cost committed to any one instrument.
	// Zero means no cap.
	MaxPerInstrument float64

	// Rand picks which instrument to shed when the budget cannot cover every
	// minimum ticket. Nil sheds the instrument with the smallest allocation.
	Rand *rand.Rand
}

// Allocate splits a cash budget across instruments in whole lots.
//
// The budget is divided evenly, each instrument taking as many lots of its
// share as fit. The remainder is handed out one lot at a time in descending
// per-lot cost order, round after round, until nothing more fits. If any
// instrument then ends up below MinTradeCost one instrument is dropped and the
// whole allocation is redone on the smaller set. The set shrinks on every
// retry; once it is empty every instrument gets zero lots.
//
// The result has one entry per quote, in input order. Quotes with a
// non-positive price always get zero lots.
func Allocate(req Request) []Allocation {
	out := make([]Allocation, len(req.Quotes))
	for i, q := range req.Quotes {
		out[i] = Allocation{Code: q.Code}
	}
	if req.Budget <= 0 || req.LotSize <= 0 || math.IsNaN(req.Budget) {
		return out
	}

	perLot := make([]float64, len(req.Quotes))
	active := make([]int, 0, len(req.Quotes))
	for i, q := range req.Quotes {
		pl := q.Price * float64(req.LotSize)
		if pl > 0 && !math.IsInf(pl, 0) && !math.IsNaN(pl) {
			perLot[i] = pl
			active = append(active, i)
		}
	}

	lots := make([]int64, len(req.Quotes))
	for len(active) > 0 {
		for i := range lots {
			lots[i] = 0
		}

		share := req.Budget / float64(len(active))
		committed := 0.0
		for _, i := range active {
			n := math.Floor(share / perLot[i])
			if req.MaxPerInstrument > 0 {
				n = math.Min(n, math.Floor(req.MaxPerInstrument/perLot[i]))
			}
			lots[i] = int64(n)
			committed += n * perLot[i]
		}

		distributeRemainder(req, active, perLot, lots, req.Budget-committed)

		minAmount := math.Inf(1)
		smallest := -1
		for k, i := range active {
			amount := float64(lots[i]) * perLot[i]
			if amount < minAmount {
				minAmount = amount
				smallest = k
			}
		}
		if minAmount >= req.MinTradeCost {
			for _, i := range active {
				out[i].Lots = lots[i]
			}
			return out
		}

		drop := smallest
		if req.Rand != nil {
			drop = req.Rand.Intn(len(active))
		}
		active = append(active[:drop], active[drop+1:]...)
	}
	return out
}

// distributeRemainder gives one more lot per round to each instrument that
// still fits, most expensive lot first. Ties keep input order.
func distributeRemainder(req Request, active []int, perLot []float64, lots []int64, remainder float64) {
	byCost := append([]int(nil), active...)
	sort.SliceStable(byCost, func(a, b int) bool {
		return perLot[byCost[a]] > perLot[byCost[b]]
	})

	for {
		gave := false
		for _, i := range byCost {
			if perLot[i] > remainder {
				continue
			}
			if req.MaxPerInstrument > 0 && float64(lots[i]+1)*perLot[i] > req.MaxPerInstrument {
				continue
			}
			lots[i]++
			remainder -= perLot[i]
			gave = true
		}
		if !gave {
			return
		}
	}
}

// Cost is the total cost of the allocations at the given prices.
func Cost(allocs []Allocation, quotes []Quote, lotSize int64) float64 {
	price := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		price[q.Code] = q.Price
	}
	total := 0.0
	for _, a := range allocs {
		total += float64(a.Lots*lotSize) * price[a.Code]
	}
	return total
}
