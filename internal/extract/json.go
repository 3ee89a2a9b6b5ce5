package extract

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sells-group/spreadwatch/internal/model"
)

// JSONPath locates one field inside a JSON document. Paths use gjson syntax.
type JSONPath struct {
	Value  string `yaml:"value"`
	Change string `yaml:"change,omitempty"`
}

// JSONPaths reads each field from a fixed path. Fields whose path does not
// resolve to a plausible number are skipped.
type JSONPaths struct {
	Paths  map[model.FieldKey]JSONPath
	Bounds Bounds
}

func (s *JSONPaths) Name() string { return "json_paths" }

func (s *JSONPaths) Extract(raw []byte) model.FieldMap {
	out := make(model.FieldMap)
	if !gjson.ValidBytes(raw) {
		return out
	}
	b := s.Bounds.orDefault()
	for key, p := range s.Paths {
		v, ok := number(gjson.GetBytes(raw, p.Value))
		if !ok || !b.Accept(v) {
			continue
		}
		fv := model.FieldValue{Value: v}
		if p.Change != "" {
			if c, ok := number(gjson.GetBytes(raw, p.Change)); ok {
				fv.Change = b.Change(c)
			}
		}
		out[key] = fv
	}
	return out
}

// JSONRecords walks an array of quote records, each carrying a label that
// identifies the maturity. Records whose label is unknown, or whose value is
// missing or implausible, are skipped.
type JSONRecords struct {
	// ArrayPath points at the record array (or a single record object).
	ArrayPath string
	LabelKey  string
	ValueKey  string
	ChangeKey string
	// Labels maps upper-cased record labels to fields.
	Labels map[string]model.FieldKey
	Bounds Bounds
}

func (s *JSONRecords) Name() string { return "json_records" }

func (s *JSONRecords) Extract(raw []byte) model.FieldMap {
	out := make(model.FieldMap)
	if !gjson.ValidBytes(raw) {
		return out
	}
	b := s.Bounds.orDefault()

	records := gjson.GetBytes(raw, s.ArrayPath)
	visit := func(rec gjson.Result) {
		if !rec.IsObject() {
			return
		}
		label := strings.ToUpper(strings.TrimSpace(rec.Get(s.LabelKey).String()))
		key, ok := s.Labels[label]
		if !ok {
			return
		}
		if _, seen := out[key]; seen {
			return
		}
		v, ok := number(rec.Get(s.ValueKey))
		if !ok || !b.Accept(v) {
			return
		}
		fv := model.FieldValue{Value: v}
		if s.ChangeKey != "" {
			if c, ok := number(rec.Get(s.ChangeKey)); ok {
				fv.Change = b.Change(c)
			}
		}
		out[key] = fv
	}

	switch {
	case records.IsArray():
		records.ForEach(func(_, rec gjson.Result) bool {
			visit(rec)
			return true
		})
	case records.IsObject():
		visit(records)
	}
	return out
}

// number converts a gjson result holding a number or a numeric string.
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		return ParseNumber(r.String())
	default:
		return 0, false
	}
}
