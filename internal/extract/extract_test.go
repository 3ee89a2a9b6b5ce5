package extract

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spreadwatch/internal/model"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"3.501", 3.501, true},
		{"3,501", 3.501, true},
		{"+0.012", 0.012, true},
		{"-0,03%", -0.03, true},
		{" 4.34 % ", 4.34, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"−0.05", -0.05, true},
		{"UNCH", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	b := DefaultBounds()
	assert.True(t, b.Accept(3.5))
	assert.True(t, b.Accept(-0.4))
	assert.False(t, b.Accept(35))
	assert.False(t, b.Accept(-7))
	assert.Equal(t, 0.0, b.Change(5))
	assert.Equal(t, -0.05, b.Change(-0.05))
}

func TestJSONPaths(t *testing.T) {
	raw := []byte(`{"data":{"it10":{"yield":"3.50","chg":0.02},"de10":{"yield":2.89},"it2":{"yield":99}}}`)
	s := &JSONPaths{Paths: map[model.FieldKey]JSONPath{
		model.BTP10Y:  {Value: "data.it10.yield", Change: "data.it10.chg"},
		model.Bund10Y: {Value: "data.de10.yield", Change: "data.de10.chg"},
		model.BTP2Y:   {Value: "data.it2.yield"},
		model.BTP30Y:  {Value: "data.missing.yield"},
	}}

	got := s.Extract(raw)
	assert.Equal(t, model.FieldMap{
		model.BTP10Y:  {Value: 3.50, Change: 0.02},
		model.Bund10Y: {Value: 2.89},
	}, got)
}

func TestJSONPaths_InvalidJSON(t *testing.T) {
	s := &JSONPaths{Paths: map[model.FieldKey]JSONPath{model.BTP10Y: {Value: "a"}}}
	assert.Empty(t, s.Extract([]byte("<html>blocked</html>")))
}

func TestJSONRecords(t *testing.T) {
	raw := []byte(`{"FormattedQuoteResult":{"FormattedQuote":[
		{"symbol":"IT10Y","last":"3.501%","change":"-0.012"},
		{"symbol":"DE10Y","last":"2.890%","change":"UNCH"},
		{"symbol":"IT2Y","last":"N/A"},
		{"symbol":"US10Y","last":"4.1"},
		"garbage"
	]}}`)
	s := &JSONRecords{
		ArrayPath: "FormattedQuoteResult.FormattedQuote",
		LabelKey:  "symbol",
		ValueKey:  "last",
		ChangeKey: "change",
		Labels: map[string]model.FieldKey{
			"IT10Y": model.BTP10Y,
			"IT2Y":  model.BTP2Y,
			"DE10Y": model.Bund10Y,
		},
	}

	got := s.Extract(raw)
	require.Len(t, got, 2)
	assert.InDelta(t, 3.501, got[model.BTP10Y].Value, 1e-9)
	assert.InDelta(t, -0.012, got[model.BTP10Y].Change, 1e-9)
	assert.InDelta(t, 2.89, got[model.Bund10Y].Value, 1e-9)
	assert.Equal(t, 0.0, got[model.Bund10Y].Change)
}

func TestJSONRecords_SingleObject(t *testing.T) {
	raw := []byte(`{"quote":{"symbol":"it30y","last":4.34}}`)
	s := &JSONRecords{
		ArrayPath: "quote",
		LabelKey:  "symbol",
		ValueKey:  "last",
		Labels:    map[string]model.FieldKey{"IT30Y": model.BTP30Y},
	}
	assert.Equal(t, model.FieldMap{model.BTP30Y: {Value: 4.34}}, s.Extract(raw))
}

func TestPatterns_FirstPlausibleMatchWins(t *testing.T) {
	first, err := CompilePatterns(model.BTP10Y,
		`BTP 10 anni[^0-9]*(?P<value>\d+[.,]\d+)\s*\((?P<change>[+-]?\d+[.,]\d+)\)`,
		`Rendimento BTP[^0-9]*(\d+[.,]\d+)`,
	)
	require.NoError(t, err)
	bund, err := CompilePatterns(model.Bund10Y, `Bund[^0-9]*(\d+[.,]\d+)`)
	require.NoError(t, err)

	text := []byte("Rendimento BTP 99,9 ... Rendimento BTP 3,52 ... Bund 2,88 ... BTP 10 anni 3,50 (+0,02)")
	s := &Patterns{List: append(first, bund...)}

	got := s.Extract(text)
	assert.InDelta(t, 3.50, got[model.BTP10Y].Value, 1e-9)
	assert.InDelta(t, 0.02, got[model.BTP10Y].Change, 1e-9)
	assert.InDelta(t, 2.88, got[model.Bund10Y].Value, 1e-9)
}

func TestPatterns_FallsThroughToLaterPattern(t *testing.T) {
	list, err := CompilePatterns(model.BTP2Y, `BTP 2Y: (\d+\.\d+)`, `2 anni\D+(\d+,\d+)`)
	require.NoError(t, err)
	s := &Patterns{List: list}

	got := s.Extract([]byte("Scadenza 2 anni 2,85"))
	assert.Equal(t, model.FieldMap{model.BTP2Y: {Value: 2.85}}, got)
}

func TestCompilePatterns_Errors(t *testing.T) {
	_, err := CompilePatterns(model.BTP2Y, `(`)
	assert.Error(t, err)
	_, err = CompilePatterns(model.BTP2Y, `no groups`)
	assert.Error(t, err)
}

func TestTable(t *testing.T) {
	tbl, err := NewTable(`(?m)^(?P<label>Italy \d+Y)\s+(?P<value>-?\d+\.\d+)\s+\S+\s+\S+\s+\S+\s+(?P<change>[+-]?\d+\.\d+)`, map[string]model.FieldKey{
		"Italy 2Y":  model.BTP2Y,
		"Italy 5Y":  model.BTP5Y,
		"italy 10y": model.BTP10Y,
	})
	require.NoError(t, err)

	text := []byte(`Name Yield Prev High Low Chg.
Italy 2Y 2.851 2.860 2.870 2.840 -0.009
Italy 5Y 312.0 2.810 2.820 2.800 +0.010
Italy 10Y 3.501 3.480 3.510 3.470 +0.021
Italy 10Y 3.999 3.480 3.510 3.470 +0.021
Italy 30Y 4.340 4.330 4.350 4.320 +0.010`)

	got := tbl.Extract(text)
	assert.Equal(t, model.FieldMap{
		model.BTP2Y:  {Value: 2.851, Change: -0.009},
		model.BTP10Y: {Value: 3.501, Change: 0.021},
	}, got)
}

func TestNewTable_RequiresGroups(t *testing.T) {
	_, err := NewTable(`(\w+) (\d+)`, nil)
	assert.Error(t, err)
}

type fixedStrategy struct {
	name   string
	fields model.FieldMap
	calls  int
}

func (f *fixedStrategy) Name() string { return f.name }
func (f *fixedStrategy) Extract(_ []byte) model.FieldMap {
	f.calls++
	return f.fields
}

func TestChain_FirstStrategyWinsPerField(t *testing.T) {
	a := &fixedStrategy{name: "a", fields: model.FieldMap{model.BTP10Y: {Value: 3.5}}}
	b := &fixedStrategy{name: "b", fields: model.FieldMap{model.BTP10Y: {Value: 3.9}, model.BTP2Y: {Value: 2.8}}}
	c := &fixedStrategy{name: "c", fields: model.FieldMap{model.BTP5Y: {Value: 2.9}}}

	chain := NewChain([]model.FieldKey{model.BTP2Y, model.BTP10Y}, a, b, c)
	got := chain.Extract(nil)

	assert.Equal(t, model.FieldMap{
		model.BTP10Y: {Value: 3.5},
		model.BTP2Y:  {Value: 2.8},
	}, got)
	assert.Equal(t, 0, c.calls, "chain should stop once wanted fields are filled")
	assert.Equal(t, "chain(a,b,c)", chain.Name())
}

func TestChain_NoWantRunsAll(t *testing.T) {
	a := &fixedStrategy{name: "a", fields: model.FieldMap{model.BTP10Y: {Value: 3.5}}}
	b := &fixedStrategy{name: "b", fields: model.FieldMap{model.BTP5Y: {Value: 2.9}}}
	got := NewChain(nil, a, b).Extract(nil)
	assert.Len(t, got, 2)
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "ITALY 10Y", NormalizeLabel("  italy\t 10y "))
	assert.True(t, regexp.MustCompile(`^ITALY`).MatchString(NormalizeLabel("Italy")))
}
