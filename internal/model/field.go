// Package model defines the indicator fields, snapshots and derived metrics
// shared by the acquisition pipeline.
package model

import (
	"sort"

	"github.com/rotisserie/eris"
)

// FieldKey identifies one tracked indicator facet.
type FieldKey string

// Tracked fields. Market A is the Italian BTP curve, market B the German Bund.
const (
	BTP2Y   FieldKey = "btp2y"
	BTP5Y   FieldKey = "btp5y"
	BTP10Y  FieldKey = "btp10y"
	BTP30Y  FieldKey = "btp30y"
	Bund10Y FieldKey = "bund10y"
)

// AllFields is the declared field set in display order.
var AllFields = []FieldKey{BTP2Y, BTP5Y, BTP10Y, BTP30Y, Bund10Y}

// Valid reports whether k is one of the declared fields.
func (k FieldKey) Valid() bool {
	for _, f := range AllFields {
		if f == k {
			return true
		}
	}
	return false
}

// ParseFieldKey converts a configuration string into a FieldKey.
func ParseFieldKey(s string) (FieldKey, error) {
	k := FieldKey(s)
	if !k.Valid() {
		return "", eris.Errorf("model: unknown field key %q", s)
	}
	return k, nil
}

// FieldValue is one indicator reading and its most recent daily delta.
type FieldValue struct {
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
}

// FieldMap maps fields to values. A map produced by a single source may be
// partial or empty.
type FieldMap map[FieldKey]FieldValue

// Has reports whether every key in keys is present.
func (m FieldMap) Has(keys ...FieldKey) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// Complete reports whether m holds every declared field.
func (m FieldMap) Complete() bool {
	return m.Has(AllFields...)
}

// Missing returns the declared fields absent from m, in declaration order.
func (m FieldMap) Missing() []FieldKey {
	var out []FieldKey
	for _, k := range AllFields {
		if _, ok := m[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Keys returns the keys of m sorted in declaration order.
func (m FieldMap) Keys() []FieldKey {
	keys := make([]FieldKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// Clone returns a shallow copy of m.
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SortKeys orders keys by their position in AllFields. Unknown keys sort last.
func SortKeys(keys []FieldKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		return fieldIndex(keys[i]) < fieldIndex(keys[j])
	})
}

func fieldIndex(k FieldKey) int {
	for i, f := range AllFields {
		if f == k {
			return i
		}
	}
	return len(AllFields)
}
