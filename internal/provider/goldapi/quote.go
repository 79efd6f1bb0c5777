package goldapi

import (
	"math"
	"time"

	"metalsync/internal/provider"
)

// DisplayLayout formats Quote.Time.
const DisplayLayout = "2006-01-02 15:04:05"

// Response is the goldapi.io body for one metal. Every field is optional on
// the wire; a missing price is rejected by the client.
type Response struct {
	Timestamp      *int64   `json:"timestamp"`
	Metal          string   `json:"metal"`
	Currency       string   `json:"currency"`
	Price          *float64 `json:"price"`
	PrevClosePrice *float64 `json:"prev_close_price"`
	OpenPrice      *float64 `json:"open_price"`
	LowPrice       *float64 `json:"low_price"`
	HighPrice      *float64 `json:"high_price"`
	Ch             *float64 `json:"ch"`
	Chp            *float64 `json:"chp"`
	Ask            *float64 `json:"ask"`
	Bid            *float64 `json:"bid"`
	PriceGram24k   *float64 `json:"price_gram_24k"`
	PriceGram22k   *float64 `json:"price_gram_22k"`
	PriceGram21k   *float64 `json:"price_gram_21k"`
	PriceGram20k   *float64 `json:"price_gram_20k"`
	PriceGram18k   *float64 `json:"price_gram_18k"`
	PriceGram16k   *float64 `json:"price_gram_16k"`
	PriceGram14k   *float64 `json:"price_gram_14k"`
	PriceGram10k   *float64 `json:"price_gram_10k"`
	// Message is set on error bodies.
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ToQuote maps a body to a Quote. now stamps the display time when the
// body carries no timestamp.
func (r Response) ToQuote(sym provider.Symbol, now time.Time, loc *time.Location) provider.Quote {
	q := provider.Quote{
		ID:        sym.ID(),
		Symbol:    sym,
		Name:      sym.Name(),
		PrevClose: finite(r.PrevClosePrice),
		Open:      finite(r.OpenPrice),
		Low:       finite(r.LowPrice),
		High:      finite(r.HighPrice),
		Bid:       finite(r.Bid),
		Ask:       finite(r.Ask),
		Change:    finite(r.Ch),
		ChangePct: finite(r.Chp),
		Grams: provider.NewGrams(map[string]*float64{
			"24k": finite(r.PriceGram24k),
			"22k": finite(r.PriceGram22k),
			"21k": finite(r.PriceGram21k),
			"20k": finite(r.PriceGram20k),
			"18k": finite(r.PriceGram18k),
			"16k": finite(r.PriceGram16k),
			"14k": finite(r.PriceGram14k),
			"10k": finite(r.PriceGram10k),
		}),
	}
	if r.Price != nil {
		q.Price = *r.Price
	}
	if r.Timestamp != nil {
		ts := *r.Timestamp
		q.RawTimestamp = &ts
		now = time.Unix(ts, 0)
	}
	q.Time = now.In(loc).Format(DisplayLayout)
	return q
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	x := *v
	return &x
}
