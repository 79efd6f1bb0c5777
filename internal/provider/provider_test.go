package provider

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymbols_FixedOrder(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Symbol{Gold, Silver, Platinum, Palladium}, Symbols())
	require.Equal(t, "xau", Gold.ID())
	require.Equal(t, "Palladium", Palladium.Name())
	require.Equal(t, 2, Platinum.Index())
	require.Equal(t, -1, Symbol("XCU").Index())

	// Assert: callers cannot reorder the enumeration through the returned slice
	s := Symbols()
	s[0] = Palladium
	require.Equal(t, Gold, Symbols()[0])
}

func TestParseSymbol(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Symbol{"XAU": Gold, "xag": Silver, " platinum ": Platinum, "Palladium": Palladium} {
		got, err := ParseSymbol(in)
		require.NoErrorf(t, err, "parse %q", in)
		require.Equal(t, want, got)
	}
	_, err := ParseSymbol("copper")
	require.Error(t, err)
}

func TestQuoteValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Quote{Symbol: Gold, Price: 1}.Validate())
	require.Error(t, Quote{Symbol: "XCU", Price: 1}.Validate())
	require.Error(t, Quote{Symbol: Gold, Price: math.NaN()}.Validate())
	require.Error(t, Quote{Symbol: Gold, Price: math.Inf(1)}.Validate())
}

func TestGrams_JSONKeepsPurityOrder(t *testing.T) {
	t.Parallel()

	g := NewGrams(map[string]*float64{"10k": toPtr(45.5), "24k": toPtr(108.85), "9k": toPtr(1.0)})

	b, err := json.Marshal(g)
	require.NoError(t, err)
	require.JSONEq(t, `{"24k":108.85,"22k":null,"21k":null,"20k":null,"18k":null,"16k":null,"14k":null,"10k":45.5}`, string(b))
	require.Equal(t, `{"24k":108.85,"22k":null,"21k":null,"20k":null,"18k":null,"16k":null,"14k":null,"10k":45.5}`, string(b))

	var back Grams
	require.NoError(t, json.Unmarshal(b, &back))
	v, ok := back.Get("24k")
	require.True(t, ok)
	require.InEpsilon(t, 108.85, *v, 1e-9)
	v, ok = back.Get("22k")
	require.True(t, ok)
	require.Nil(t, v)
	_, ok = back.Get("9k")
	require.False(t, ok)
}

func TestSnapshotClone_DoesNotShareQuotes(t *testing.T) {
	t.Parallel()

	s := Snapshot{Quotes: []Quote{{ID: "xau", Symbol: Gold, Price: 1}}}
	c := s.Clone()
	c.Quotes[0].Price = 2
	require.InEpsilon(t, 1.0, s.Quotes[0].Price, 1e-9)
}

func TestQuoteClone_DoesNotSharePointers(t *testing.T) {
	t.Parallel()

	// Arrange
	q := Quote{
		ID: "xau", Symbol: Gold, Price: 1,
		Bid:          toPtr(1.5),
		ChangePct:    toPtr(0.2),
		RawTimestamp: toPtr(int64(1735787045)),
		Grams:        NewGrams(map[string]*float64{"24k": toPtr(108.85)}),
	}
	s := Snapshot{Quotes: []Quote{q}}

	// Act
	c := s.Clone()
	*c.Quotes[0].Bid = 9
	*c.Quotes[0].ChangePct = 9
	*c.Quotes[0].RawTimestamp = 9
	*c.Quotes[0].Grams.values[0] = 9

	// Assert
	require.InEpsilon(t, 1.5, *q.Bid, 1e-9)
	require.InEpsilon(t, 0.2, *q.ChangePct, 1e-9)
	require.Equal(t, int64(1735787045), *q.RawTimestamp)
	v, _ := q.Grams.Get("24k")
	require.InEpsilon(t, 108.85, *v, 1e-9)
	require.NotSame(t, q.Bid, c.Quotes[0].Bid)
	require.Nil(t, c.Quotes[0].Low)
	require.Nil(t, CloneQuotes(nil))
}

func toPtr[T any](v T) *T { return &v }
