// Package extract turns raw source responses into partial field maps.
//
// Each Strategy is a small, independently testable way of reading fields out
// of one response shape. A Chain runs strategies in order and keeps the first
// plausible value seen for every field.
package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/spreadwatch/internal/model"
)

// Strategy extracts whatever fields it can recognise from raw. It never
// fails: unreadable fields are simply absent from the result.
type Strategy interface {
	Name() string
	Extract(raw []byte) model.FieldMap
}

// Bounds rejects implausible readings before they reach the merge.
type Bounds struct {
	Min       float64
	Max       float64
	MaxChange float64
}

// DefaultBounds accepts yields between -2% and 20% and daily moves up to 200bp.
func DefaultBounds() Bounds {
	return Bounds{Min: -2, Max: 20, MaxChange: 2}
}

// Accept reports whether v is a plausible yield.
func (b Bounds) Accept(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= b.Min && v <= b.Max
}

// Change returns c when plausible and 0 otherwise.
func (b Bounds) Change(c float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) || math.Abs(c) > b.MaxChange {
		return 0
	}
	return c
}

func (b Bounds) orDefault() Bounds {
	if b == (Bounds{}) {
		return DefaultBounds()
	}
	return b
}

// ParseNumber reads a number as it appears on quote pages: optional sign,
// thousands separators, comma decimals and a trailing percent sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Replace(s, "\u2212", "-", 1)
	if s == "" {
		return 0, false
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		// The right-most separator is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Chain runs strategies in order. For each field the first strategy that
// produces a value wins. Once every wanted field is filled the remaining
// strategies are not run.
type Chain struct {
	Strategies []Strategy
	Want       []model.FieldKey
}

// NewChain creates a chain that stops once all want fields are present.
// An empty want list runs every strategy.
func NewChain(want []model.FieldKey, strategies ...Strategy) *Chain {
	return &Chain{Strategies: strategies, Want: want}
}

// Extract implements Strategy.
func (c *Chain) Extract(raw []byte) model.FieldMap {
	out := make(model.FieldMap)
	for _, s := range c.Strategies {
		if len(c.Want) > 0 && out.Has(c.Want...) {
			break
		}
		for k, v := range s.Extract(raw) {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	if len(c.Want) > 0 {
		for k := range out {
			if !contains(c.Want, k) {
				delete(out, k)
			}
		}
	}
	return out
}

// Name implements Strategy.
func (c *Chain) Name() string {
	names := make([]string, len(c.Strategies))
	for i, s := range c.Strategies {
		names[i] = s.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func contains(keys []model.FieldKey, k model.FieldKey) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
