package waterfall

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/model"
)

// DefaultBaselineVersion identifies the built-in reference values.
const DefaultBaselineVersion = "2025-01-builtin"

// Baseline is a versioned set of reference values used to complete a
// snapshot when no live source supplied a field.
type Baseline struct {
	Version string
	Values  model.FieldMap
}

// DefaultBaseline returns the built-in reference values.
func DefaultBaseline() Baseline {
	return Baseline{
		Version: DefaultBaselineVersion,
		Values: model.FieldMap{
			model.BTP2Y:   {Value: 2.22},
			model.BTP5Y:   {Value: 2.81},
			model.BTP10Y:  {Value: 3.50},
			model.BTP30Y:  {Value: 4.34},
			model.Bund10Y: {Value: 2.89},
		},
	}
}

// Validate checks that the baseline covers every declared field.
func (b Baseline) Validate() error {
	if b.Version == "" {
		return eris.New("waterfall: baseline has no version")
	}
	if missing := b.Values.Missing(); len(missing) > 0 {
		return eris.Errorf("waterfall: baseline missing fields %v", missing)
	}
	return nil
}

// Fill completes fields from the baseline, recording baseline provenance for
// every field it supplies. It reports whether the result is stale, meaning
// no field came from a live source.
func (b Baseline) Fill(fields model.FieldMap, prov model.ProvenanceMap) bool {
	for _, k := range fields.Missing() {
		fields[k] = b.Values[k]
		prov[k] = model.SourceBaseline
	}
	return prov.AllBaseline()
}

// LastKnownGood overlays the live fields of a previous snapshot on b. Their
// daily change is dropped since it describes an earlier session. When prev
// has no live field, b is returned unchanged.
func LastKnownGood(b Baseline, prev *model.Snapshot) Baseline {
	if prev == nil || len(prev.Fields) == 0 {
		return b
	}
	out := Baseline{Version: b.Version, Values: b.Values.Clone()}
	overlaid := false
	for _, k := range model.AllFields {
		fv, ok := prev.Fields[k]
		if !ok || prev.Provenance[k] == model.SourceBaseline || prev.Provenance[k] == "" {
			continue
		}
		out.Values[k] = model.FieldValue{Value: fv.Value}
		overlaid = true
	}
	if !overlaid {
		return b
	}
	out.Version = "last-known:" + prev.AsOf
	return out
}
