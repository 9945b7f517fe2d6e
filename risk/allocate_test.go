package risk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lotsOf(allocs []Allocation) []int64 {
	out := make([]int64, len(allocs))
	for i, a := range allocs {
		out[i] = a.Lots
	}
	return out
}

func TestAllocateEvenSplitWithRemainder(t *testing.T) {
	t.Parallel()

	quotes := []Quote{{"A", 10}, {"B", 20}, {"C", 30}}
	got := Allocate(Request{Quotes: quotes, Budget: 1_000_000, LotSize: 100, MinTradeCost: 1})

	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{got[0].Code, got[1].Code, got[2].Code})
	// 333*1000 + 166*2000 + 111*3000 = 998000; the 2000 left buys one more B lot.
	assert.Equal(t, []int64{333, 167, 111}, lotsOf(got))
	assert.InDelta(t, 1_000_000.0, Cost(got, quotes, 100), 1e-6)
}

func TestAllocateBudgetTooSmall(t *testing.T) {
	t.Parallel()

	quotes := []Quote{{"A", 10}, {"B", 20}}
	got := Allocate(Request{Quotes: quotes, Budget: 50, LotSize: 100, MinTradeCost: 1})
	assert.Equal(t, []int64{0, 0}, lotsOf(got))
}

func TestAllocateDegenerateInputs(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Allocate(Request{Budget: 1000, LotSize: 100}))

	quotes := []Quote{{"A", 10}}
	assert.Equal(t, []int64{0}, lotsOf(Allocate(Request{Quotes: quotes, Budget: 0, LotSize: 100})))
	assert.Equal(t, []int64{0}, lotsOf(Allocate(Request{Quotes: quotes, Budget: -5, LotSize: 100})))

	bad := []Quote{{"A", 0}, {"B", 10}}
	assert.Equal(t, []int64{0, 10}, lotsOf(Allocate(Request{Quotes: bad, Budget: 10_000, LotSize: 100})))
}

func TestAllocateDropsUntilMinimumTicketMet(t *testing.T) {
	t.Parallel()

	// Two instruments split 3000: A gets 1 lot (1000), B gets 1 lot (2000).
	// Neither reaches 2500 together, so the retry loop sheds instruments.
	quotes := []Quote{{"A", 10}, {"B", 20}}
	got := Allocate(Request{Quotes: quotes, Budget: 3000, LotSize: 100, MinTradeCost: 2500})

	// Without a Rand the smaller ticket is dropped first. B alone still only
	// fits one 2000 lot, below 2500, so B is dropped too.
	assert.Equal(t, []int64{0, 0}, lotsOf(got))

	got = Allocate(Request{Quotes: quotes, Budget: 3000, LotSize: 100, MinTradeCost: 1500})
	// A is shed, B then takes 3000/2000 = 1 lot.
	assert.Equal(t, []int64{0, 1}, lotsOf(got))
}

func TestAllocateRespectsPerInstrumentCap(t *testing.T) {
	t.Parallel()

	quotes := []Quote{{"A", 10}, {"B", 10}}
	got := Allocate(Request{Quotes: quotes, Budget: 100_000, LotSize: 100, MaxPerInstrument: 5_000})
	assert.Equal(t, []int64{5, 5}, lotsOf(got))
}

func TestAllocateProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(8)
		quotes := make([]Quote, n)
		for i := range quotes {
			quotes[i] = Quote{Code: string(rune('A' + i)), Price: 1 + rng.Float64()*99}
		}
		budget := rng.Float64() * 500_000
		minTicket := rng.Float64() * 20_000

		got := Allocate(Request{
			Quotes:       quotes,
			Budget:       budget,
			LotSize:      100,
			MinTradeCost: minTicket,
			Rand:         rand.New(rand.NewSource(int64(trial))),
		})

		require.Len(t, got, n)
		assert.LessOrEqual(t, Cost(got, quotes, 100), budget+1e-6)
		for i, a := range got {
			assert.GreaterOrEqual(t, a.Lots, int64(0))
			assert.Equal(t, quotes[i].Code, a.Code)
		}

		// Either everything is zero or every funded instrument clears the ticket.
		for i, a := range got {
			if a.Lots > 0 {
				assert.GreaterOrEqual(t, float64(a.Lots*100)*quotes[i].Price, minTicket)
			}
		}
	}
}

func TestPolicySlotsAndCap(t *testing.T) {
	t.Parallel()

	p := Policy{MaxOpen: 3, MaxPositionFraction: 0.2}
	assert.Equal(t, 3, p.Slots(0))
	assert.Equal(t, 1, p.Slots(2))
	assert.Equal(t, 0, p.Slots(5))
	assert.InDelta(t, 20_000.0, p.PositionCap(100_000), 1e-9)

	var open Policy
	assert.Greater(t, open.Slots(1000), 1000)
	assert.Zero(t, open.PositionCap(100_000))
}

func TestSampleKeepsOrderAndSize(t *testing.T) {
	t.Parallel()

	cands := []Candidate{
		{Code: "A", Weight: 1},
		{Code: "B", Weight: 100},
		{Code: "C", Weight: 0},
		{Code: "D", Weight: 50},
	}

	assert.Equal(t, cands, Sample(cands, 10, nil))
	assert.Nil(t, Sample(cands, 0, nil))

	rng := rand.New(rand.NewSource(1))
	hits := map[string]int{}
	for i := 0; i < 500; i++ {
		got := Sample(cands, 2, rng)
		require.Len(t, got, 2)
		assert.Less(t, indexOf(cands, got[0].Code), indexOf(cands, got[1].Code))
		for _, c := range got {
			hits[c.Code]++
		}
	}
	assert.Greater(t, hits["B"], hits["A"])
	assert.Greater(t, hits["D"], hits["C"])
}

func indexOf(cands []Candidate, code string) int {
	for i, c := range cands {
		if c.Code == code {
			return i
		}
	}
	return -1
}
