package provider

import (
	"bytes"
	"strconv"

	"github.com/bytedance/sonic"
)

// Purity labels in decreasing purity.
var purities = [...]string{"24k", "22k", "21k", "20k", "18k", "16k", "14k", "10k"}

// Purities returns the fixed purity labels, purest first.
func Purities() []string {
	out := make([]string, len(purities))
	copy(out, purities[:])
	return out
}

// Grams maps each purity label to a nullable per-gram price. The zero
// value has every label present with a nil price.
type Grams struct {
	values [len(purities)]*float64
}

// NewGrams builds Grams from a label map; unknown labels are ignored.
func NewGrams(m map[string]*float64) Grams {
	var g Grams
	for i, label := range purities {
		if v, ok := m[label]; ok && v != nil {
			x := *v
			g.values[i] = &x
		}
	}
	return g
}

// Clone returns a copy that shares no pointers with g.
func (g Grams) Clone() Grams {
	var out Grams
	for i, v := range g.values {
		out.values[i] = clonePtr(v)
	}
	return out
}

// Get returns the per-gram price for label and whether the label is known.
func (g Grams) Get(label string) (*float64, bool) {
	for i, l := range purities {
		if l == label {
			if g.values[i] == nil {
				return nil, true
			}
			x := *g.values[i]
			return &x, true
		}
	}
	return nil, false
}

// MarshalJSON writes the labels in purity order instead of map key order.
func (g Grams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range purities {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(label))
		buf.WriteByte(':')
		if g.values[i] == nil {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(*g.values[i], 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (g *Grams) UnmarshalJSON(b []byte) error {
	var m map[string]*float64
	if err := sonic.Unmarshal(b, &m); err != nil {
		return err
	}
	*g = NewGrams(m)
	return nil
}
