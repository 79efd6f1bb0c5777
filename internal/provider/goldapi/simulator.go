package goldapi

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"metalsync/internal/clock"
	"metalsync/internal/provider"
)

// gramsPerTroyOunce converts an ounce price to a 24k per-gram price.
const gramsPerTroyOunce = 31.1035

var basePrices = map[provider.Symbol]float64{
	provider.Gold:      2385.7,
	provider.Silver:    29.85,
	provider.Platinum:  975.25,
	provider.Palladium: 1015.4,
}

// Purity steps below 24k, in multiples of 8.5% of the 24k gram price.
var gramSteps = [...]struct {
	label string
	mult  float64
}{
	{"22k", 1}, {"21k", 1.25}, {"20k", 1.5}, {"18k", 2}, {"16k", 2.5}, {"14k", 3}, {"10k", 4},
}

// Simulator is an offline Source that produces plausible quotes around
// fixed base prices. It is used when no access token is configured.
type Simulator struct {
	clock      clock.Clock
	loc        *time.Location
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

type SimulatorOption func(*Simulator)

// WithLatency sets the range of the artificial per-call delay. Zero disables it.
func WithLatency(lo, hi time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if hi < lo {
			hi = lo
		}
		s.minLatency, s.maxLatency = lo, hi
	}
}

// WithSeed makes the generated sequence reproducible.
func WithSeed(seed uint64) SimulatorOption {
	return func(s *Simulator) { s.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func WithSimulatorClock(clk clock.Clock) SimulatorOption {
	return func(s *Simulator) { s.clock = clk }
}

func WithSimulatorLocation(loc *time.Location) SimulatorOption {
	return func(s *Simulator) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		clock:      clock.Real{},
		loc:        time.Local,
		minLatency: 400 * time.Millisecond,
		maxLatency: time.Second,
		rnd:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Name() string { return "simulator" }

// FetchQuote ignores the credential.
func (s *Simulator) FetchQuote(ctx context.Context, symbol provider.Symbol, _ string) (provider.Quote, error) {
	if !symbol.Valid() {
		return provider.Quote{}, &UpstreamError{Symbol: symbol, StatusCode: 400, Message: "failed " + string(symbol)}
	}

	s.mu.Lock()
	delay := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		delay += time.Duration(s.rnd.Int64N(int64(span)))
	}
	chp := round(s.rnd.Float64()*3-1.5, 2)
	s.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return provider.Quote{}, ctx.Err()
		case <-t.C:
		}
	}

	now := s.clock.Now()
	return simulate(symbol, chp, now.Unix()).ToQuote(symbol, now, s.loc), nil
}

// simulate derives a full body from the base price and a percent change.
func simulate(symbol provider.Symbol, chp float64, ts int64) Response {
	base := basePrices[symbol]
	price := round(base*(1+chp/100), 3)
	prev := round(base, 3)
	g24 := round(price/gramsPerTroyOunce, 4)
	step := g24 * 0.085

	r := Response{
		Timestamp:      &ts,
		Metal:          string(symbol),
		Currency:       DefaultCurrency,
		Price:          &price,
		PrevClosePrice: &prev,
		OpenPrice:      ptr(prev),
		LowPrice:       ptr(round(math.Min(price, prev)*0.993, 3)),
		HighPrice:      ptr(round(math.Max(price, prev)*1.007, 3)),
		Ch:             ptr(round(price-prev, 3)),
		Chp:            &chp,
		Ask:            ptr(round(price*1.02, 3)),
		Bid:            ptr(round(price*0.98, 3)),
		PriceGram24k:   &g24,
	}
	grams := map[string]*float64{}
	for _, st := range gramSteps {
		grams[st.label] = ptr(round(g24-step*st.mult, 4))
	}
	r.PriceGram22k, r.PriceGram21k, r.PriceGram20k = grams["22k"], grams["21k"], grams["20k"]
	r.PriceGram18k, r.PriceGram16k, r.PriceGram14k = grams["18k"], grams["16k"], grams["14k"]
	r.PriceGram10k = grams["10k"]
	return r
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func ptr(v float64) *float64 { return &v }
