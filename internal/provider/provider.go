package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Symbol is one of the four tracked metals, keyed by its ISO 4217 code.
type Symbol string

const (
	Gold      Symbol = "XAU"
	Silver    Symbol = "XAG"
	Platinum  Symbol = "XPT"
	Palladium Symbol = "XPD"
)

var symbols = [...]Symbol{Gold, Silver, Platinum, Palladium}

var names = map[Symbol]string{
	Gold:      "Gold",
	Silver:    "Silver",
	Platinum:  "Platinum",
	Palladium: "Palladium",
}

// Symbols returns the fixed symbol enumeration in display order.
func Symbols() []Symbol {
	out := make([]Symbol, len(symbols))
	copy(out, symbols[:])
	return out
}

// ID is the stable lowercase identity used for quote ids and loading flags.
func (s Symbol) ID() string { return strings.ToLower(string(s)) }

func (s Symbol) Name() string { return names[s] }

func (s Symbol) String() string { return string(s) }

// Index returns the position of s in the fixed enumeration, or -1.
func (s Symbol) Index() int {
	for i, v := range symbols {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Symbol) Valid() bool { return s.Index() >= 0 }

// ParseSymbol accepts a code (XAU), an id (xau) or a name (gold).
func ParseSymbol(v string) (Symbol, error) {
	v = strings.TrimSpace(v)
	for _, s := range symbols {
		if strings.EqualFold(v, string(s)) || strings.EqualFold(v, s.Name()) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown metal symbol %q", v)
}

// Quote is one metal's market data from a single fetch. Treat it as
// immutable: a new fetch yields a new Quote.
type Quote struct {
	ID           string   `json:"id"`
	Symbol       Symbol   `json:"symbol"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	PrevClose    *float64 `json:"prev_close"`
	Open         *float64 `json:"open_price"`
	Low          *float64 `json:"low"`
	High         *float64 `json:"high"`
	Bid          *float64 `json:"bid"`
	Ask          *float64 `json:"ask"`
	Change       *float64 `json:"ch"`
	ChangePct    *float64 `json:"chp"`
	Grams        Grams    `json:"grams"`
	Time         string   `json:"time"`
	RawTimestamp *int64   `json:"rawTimestamp"`
}

// Validate reports whether q can be shown: a known symbol and a finite price.
func (q Quote) Validate() error {
	if !q.Symbol.Valid() {
		return fmt.Errorf("quote: unknown symbol %q", q.Symbol)
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return fmt.Errorf("quote %s: price is not finite", q.Symbol)
	}
	return nil
}

// Clone returns a copy that shares no pointers with q.
func (q Quote) Clone() Quote {
	out := q
	for _, f := range []**float64{&out.PrevClose, &out.Open, &out.Low, &out.High, &out.Bid, &out.Ask, &out.Change, &out.ChangePct} {
		*f = clonePtr(*f)
	}
	out.RawTimestamp = clonePtr(q.RawTimestamp)
	out.Grams = q.Grams.Clone()
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Snapshot is a set of quotes confirmed together in one refresh cycle.
type Snapshot struct {
	Quotes     []Quote
	CapturedAt time.Time
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Quotes: CloneQuotes(s.Quotes), CapturedAt: s.CapturedAt}
}

// CloneQuotes deep-copies qs, keeping nil as nil.
func CloneQuotes(qs []Quote) []Quote {
	if qs == nil {
		return nil
	}
	out := make([]Quote, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// Source fetches a single metal quote from an upstream API.
//
//go:generate mockgen -package=aggregate_test -destination=../aggregate/mock_source_test.go -source=provider.go Source
//go:generate mockgen -package=orchestrator_test -destination=../orchestrator/mock_source_test.go -source=provider.go Source
type Source interface {
	Name() string
	FetchQuote(ctx context.Context, symbol Symbol, credential string) (Quote, error)
}
