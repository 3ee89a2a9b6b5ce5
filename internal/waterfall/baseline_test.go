package waterfall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spreadwatch/internal/model"
)

func TestDefaultBaseline(t *testing.T) {
	b := DefaultBaseline()
	require.NoError(t, b.Validate())
	assert.Equal(t, 3.50, b.Values[model.BTP10Y].Value)
	assert.Equal(t, 2.89, b.Values[model.Bund10Y].Value)
}

func TestBaseline_Validate(t *testing.T) {
	b := Baseline{Version: "v1", Values: model.FieldMap{model.BTP10Y: {Value: 3}}}
	assert.Error(t, b.Validate())

	b = DefaultBaseline()
	b.Version = ""
	assert.Error(t, b.Validate())
}

func TestBaseline_FillPartial(t *testing.T) {
	fields := model.FieldMap{model.BTP10Y: {Value: 3.61, Change: 0.04}}
	prov := model.ProvenanceMap{model.BTP10Y: "teleborsa"}

	stale := DefaultBaseline().Fill(fields, prov)

	assert.False(t, stale)
	assert.True(t, fields.Complete())
	assert.Equal(t, 3.61, fields[model.BTP10Y].Value, "live values are kept")
	assert.Equal(t, "teleborsa", prov[model.BTP10Y])
	assert.Equal(t, model.SourceBaseline, prov[model.Bund10Y])
	assert.Equal(t, 2.89, fields[model.Bund10Y].Value)
}

func TestBaseline_FillEmptyIsStale(t *testing.T) {
	fields := model.FieldMap{}
	prov := model.ProvenanceMap{}

	stale := DefaultBaseline().Fill(fields, prov)

	assert.True(t, stale)
	assert.Equal(t, DefaultBaseline().Values, fields)
	assert.Equal(t, model.LabelFallback, prov.Label(nil))
}

func TestLastKnownGood(t *testing.T) {
	prev := &model.Snapshot{
		AsOf: "2026-10-16",
		Fields: model.FieldMap{
			model.BTP10Y:  {Value: 3.41, Change: 0.05},
			model.Bund10Y: {Value: 2.89},
		},
		Provenance: model.ProvenanceMap{
			model.BTP10Y:  "cnbc",
			model.Bund10Y: model.SourceBaseline,
		},
	}

	b := LastKnownGood(DefaultBaseline(), prev)

	assert.Equal(t, "last-known:2026-10-16", b.Version)
	assert.Equal(t, model.FieldValue{Value: 3.41}, b.Values[model.BTP10Y])
	assert.Equal(t, 2.89, b.Values[model.Bund10Y].Value)
	assert.Equal(t, 3.50, DefaultBaseline().Values[model.BTP10Y].Value, "input baseline untouched")
}

func TestLastKnownGood_NoLiveFields(t *testing.T) {
	prev := &model.Snapshot{
		AsOf:       "2026-10-16",
		Fields:     DefaultBaseline().Values,
		Provenance: model.ProvenanceMap{model.BTP10Y: model.SourceBaseline},
	}
	assert.Equal(t, DefaultBaselineVersion, LastKnownGood(DefaultBaseline(), prev).Version)
	assert.Equal(t, DefaultBaselineVersion, LastKnownGood(DefaultBaseline(), nil).Version)
}
