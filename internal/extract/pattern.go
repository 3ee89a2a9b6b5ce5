package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/model"
)

// maxMatches caps how many matches of one expression are inspected.
const maxMatches = 16

// FieldPattern captures one field's value near a maturity marker. The value
// comes from the group named "value" (or the first group); an optional
// group named "change" supplies the daily delta.
type FieldPattern struct {
	Field model.FieldKey
	Expr  *regexp.Regexp
}

// Patterns applies field patterns in order. The first plausible match for a
// field wins; later patterns for the same field are not consulted.
type Patterns struct {
	List   []FieldPattern
	Bounds Bounds
}

// CompilePatterns builds FieldPatterns from field → expressions pairs, in
// the order given.
func CompilePatterns(field model.FieldKey, exprs ...string) ([]FieldPattern, error) {
	out := make([]FieldPattern, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile pattern for %s", field)
		}
		if re.NumSubexp() == 0 {
			return nil, eris.Errorf("extract: pattern for %s has no capture group: %s", field, e)
		}
		out = append(out, FieldPattern{Field: field, Expr: re})
	}
	return out, nil
}

func (s *Patterns) Name() string { return "patterns" }

func (s *Patterns) Extract(raw []byte) model.FieldMap {
	out := make(model.FieldMap)
	b := s.Bounds.orDefault()
	for _, p := range s.List {
		if _, done := out[p.Field]; done {
			continue
		}
		if fv, ok := firstMatch(p.Expr, raw, b); ok {
			out[p.Field] = fv
		}
	}
	return out
}

func firstMatch(re *regexp.Regexp, raw []byte, b Bounds) (model.FieldValue, bool) {
	valueIdx := groupIndex(re, "value", 1)
	changeIdx := groupIndex(re, "change", -1)
	for _, m := range re.FindAllSubmatch(raw, maxMatches) {
		if valueIdx >= len(m) {
			continue
		}
		v, ok := ParseNumber(string(m[valueIdx]))
		if !ok || !b.Accept(v) {
			continue
		}
		fv := model.FieldValue{Value: v}
		if changeIdx > 0 && changeIdx < len(m) {
			if c, ok := ParseNumber(string(m[changeIdx])); ok {
				fv.Change = b.Change(c)
			}
		}
		return fv, true
	}
	return model.FieldValue{}, false
}

func groupIndex(re *regexp.Regexp, name string, fallback int) int {
	if i := re.SubexpIndex(name); i > 0 {
		return i
	}
	return fallback
}

// Table scans row-like structures for (label, value[, change]) pairs. The
// row expression must name its groups "label" and "value", and may name a
// "change" group.
type Table struct {
	Row *regexp.Regexp
	// Labels maps normalised row labels to fields.
	Labels map[string]model.FieldKey
	Bounds Bounds
}

// NewTable compiles a table strategy.
func NewTable(row string, labels map[string]model.FieldKey) (*Table, error) {
	re, err := regexp.Compile(row)
	if err != nil {
		return nil, eris.Wrap(err, "extract: compile table row")
	}
	if re.SubexpIndex("label") < 0 || re.SubexpIndex("value") < 0 {
		return nil, eris.Errorf("extract: table row needs label and value groups: %s", row)
	}
	norm := make(map[string]model.FieldKey, len(labels))
	for l, k := range labels {
		norm[NormalizeLabel(l)] = k
	}
	return &Table{Row: re, Labels: norm}, nil
}

func (s *Table) Name() string { return "table" }

func (s *Table) Extract(raw []byte) model.FieldMap {
	out := make(model.FieldMap)
	b := s.Bounds.orDefault()
	li := s.Row.SubexpIndex("label")
	vi := s.Row.SubexpIndex("value")
	ci := s.Row.SubexpIndex("change")

	for _, m := range s.Row.FindAllSubmatch(raw, -1) {
		key, ok := s.Labels[NormalizeLabel(string(m[li]))]
		if !ok {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		v, ok := ParseNumber(string(m[vi]))
		if !ok || !b.Accept(v) {
			continue
		}
		fv := model.FieldValue{Value: v}
		if ci > 0 {
			if c, ok := ParseNumber(string(m[ci])); ok {
				fv.Change = b.Change(c)
			}
		}
		out[key] = fv
	}
	return out
}

// NormalizeLabel upper-cases a label and collapses inner whitespace.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
