package model

import "strings"

// SourceBaseline is the provenance recorded for fields filled from the
// configured baseline instead of a live source.
const SourceBaseline = "baseline"

// LabelFallback is the snapshot source label when no live source contributed.
const LabelFallback = "fallback"

// ProvenanceMap records which source supplied each field.
type ProvenanceMap map[FieldKey]string

// Clone returns a shallow copy of p.
func (p ProvenanceMap) Clone() ProvenanceMap {
	out := make(ProvenanceMap, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// AllBaseline reports whether every declared field came from the baseline.
func (p ProvenanceMap) AllBaseline() bool {
	for _, k := range AllFields {
		if p[k] != SourceBaseline {
			return false
		}
	}
	return true
}

// Label composes the human-readable source label. Live sources are listed
// once each in the given priority order, followed by "baseline" when some
// fields were filled from it. A snapshot with no live field is "fallback".
func (p ProvenanceMap) Label(priority []string) string {
	if p.AllBaseline() {
		return LabelFallback
	}

	used := make(map[string]bool, len(p))
	hasBaseline := false
	for _, k := range AllFields {
		src, ok := p[k]
		if !ok {
			continue
		}
		if src == SourceBaseline {
			hasBaseline = true
			continue
		}
		used[src] = true
	}

	var parts []string
	for _, name := range priority {
		if used[name] {
			parts = append(parts, name)
			delete(used, name)
		}
	}
	// Sources outside the priority list keep field order.
	for _, k := range AllFields {
		if src := p[k]; used[src] {
			parts = append(parts, src)
			delete(used, src)
		}
	}
	if hasBaseline {
		parts = append(parts, SourceBaseline)
	}
	return strings.Join(parts, "+")
}
