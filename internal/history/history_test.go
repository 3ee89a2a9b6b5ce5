package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spreadwatch/internal/model"
)

func day(n int) string {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n).Format(model.DateLayout)
}

func entries(days ...int) []Entry {
	out := make([]Entry, len(days))
	for i, d := range days {
		out[i] = Entry{Date: day(d), BTP10Y: 3.5, Bund10Y: 2.89, Spread: 61 + d}
	}
	return out
}

func TestUpsert_AppendsNewDate(t *testing.T) {
	got := Upsert(entries(0, 1), Entry{Date: day(2), Spread: 70}, RetentionWindow)
	want := append(entries(0, 1), Entry{Date: day(2), Spread: 70})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Upsert() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_ReplacesSameDate(t *testing.T) {
	log := entries(0, 1, 2)
	got := Upsert(log, Entry{Date: day(1), BTP10Y: 3.7, Bund10Y: 2.9, Spread: 80}, RetentionWindow)

	require.Len(t, got, 3)
	assert.Equal(t, Entry{Date: day(1), BTP10Y: 3.7, Bund10Y: 2.9, Spread: 80}, got[1])
	assert.Equal(t, 62, log[1].Spread, "input log is not modified")
}

func TestUpsert_Idempotent(t *testing.T) {
	e := Entry{Date: day(3), BTP10Y: 3.5, Bund10Y: 2.89, Spread: 61}
	once := Upsert(entries(0, 1, 2), e, RetentionWindow)
	twice := Upsert(once, e, RetentionWindow)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second upsert changed the log (-once +twice):\n%s", diff)
	}
}

func TestUpsert_BackfillKeepsOrder(t *testing.T) {
	got := Upsert(entries(0, 2, 4), Entry{Date: day(3)}, RetentionWindow)
	dates := make([]string, len(got))
	for i, e := range got {
		dates[i] = e.Date
	}
	assert.Equal(t, []string{day(0), day(2), day(3), day(4)}, dates)

	got = Upsert(entries(2, 4), Entry{Date: day(1)}, RetentionWindow)
	assert.Equal(t, day(1), got[0].Date)
}

func TestUpsert_EvictsOldest(t *testing.T) {
	var log []Entry
	for d := 0; d < 35; d++ {
		log = Upsert(log, Entry{Date: day(d), Spread: d}, RetentionWindow)
	}
	require.Len(t, log, RetentionWindow)
	assert.Equal(t, day(5), log[0].Date)
	assert.Equal(t, day(34), log[len(log)-1].Date)

	small := Upsert(entries(0, 1, 2), Entry{Date: day(3)}, 2)
	assert.Equal(t, []Entry{entries(2)[0], {Date: day(3)}}, small)
}

func TestUpsert_BoundedAndUnique(t *testing.T) {
	var log []Entry
	for i := 0; i < 200; i++ {
		d := (i * 7) % 50
		log = Upsert(log, Entry{Date: day(d), Spread: i}, RetentionWindow)

		require.LessOrEqual(t, len(log), RetentionWindow)
		seen := make(map[string]bool)
		for j, e := range log {
			require.False(t, seen[e.Date], "duplicate date %s", e.Date)
			seen[e.Date] = true
			if j > 0 {
				require.Less(t, log[j-1].Date, e.Date)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := []Entry{
		{Date: day(2), Spread: 1},
		{Date: day(0), Spread: 2},
		{Date: ""},
		{Date: day(2), Spread: 3},
	}
	want := []Entry{{Date: day(0), Spread: 2}, {Date: day(2), Spread: 3}}
	if diff := cmp.Diff(want, Normalize(raw, RetentionWindow)); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Normalize(nil, RetentionWindow))
}

func TestEntryFromSnapshot(t *testing.T) {
	s := &model.Snapshot{
		AsOf: "2026-10-19",
		Fields: model.FieldMap{
			model.BTP10Y:  {Value: 3.50},
			model.Bund10Y: {Value: 2.89},
		},
		Derived: model.Derived{SpreadBasisPoints: 61},
	}
	assert.Equal(t, Entry{Date: "2026-10-19", BTP10Y: 3.50, Bund10Y: 2.89, Spread: 61}, EntryFromSnapshot(s))
}

func sampleDocument() *Document {
	return &Document{
		Snapshot: model.Snapshot{
			Timestamp: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
			AsOf:      "2026-10-19",
			Source:    "cnbc",
			Fields: model.FieldMap{
				model.BTP10Y:  {Value: 3.50, Change: 0.03},
				model.Bund10Y: {Value: 2.89, Change: -0.02},
			},
			Provenance: model.ProvenanceMap{model.BTP10Y: "cnbc", model.Bund10Y: "cnbc"},
			Derived:    model.Derived{SpreadBasisPoints: 61, SpreadChangeBasisPoints: 5},
		},
		History: entries(0, 1),
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "yields.json")
	store := NewFileStore(path, RetentionWindow)

	require.NoError(t, store.Save(sampleDocument()))
	got := store.Load()

	if diff := cmp.Diff(sampleDocument(), got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_WireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yields.json")
	require.NoError(t, NewFileStore(path, 0).Save(sampleDocument()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"lastUpdate"`, `"asOf"`, `"source"`, `"stale"`, `"fields"`, `"spread": 61`, `"spreadChange": 5`, `"history"`, `"btp10y"`} {
		assert.Contains(t, string(data), key)
	}
}

func TestFileStore_LoadMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	missing := NewFileStore(filepath.Join(dir, "none.json"), RetentionWindow).Load()
	assert.True(t, missing.Empty())

	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"asOf": "2026-10-19", "history": [`), 0o644))
	corrupt := NewFileStore(path, RetentionWindow).Load()
	assert.True(t, corrupt.Empty())
	assert.Empty(t, corrupt.History)
}

func TestFileStore_LoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yields.json")
	body := `{"asOf":"2026-10-19","history":[{"date":"2026-10-19","spread":2},{"date":"2026-10-18","spread":1},{"date":"2026-10-19","spread":3}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	doc := NewFileStore(path, RetentionWindow).Load()
	assert.Equal(t, []Entry{{Date: "2026-10-18", Spread: 1}, {Date: "2026-10-19", Spread: 3}}, doc.History)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "yields.json"), RetentionWindow)
	for i := 0; i < 3; i++ {
		doc := sampleDocument()
		doc.Source = fmt.Sprintf("run-%d", i)
		require.NoError(t, store.Save(doc))
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "run-2", store.Load().Source)
}

func TestFileStore_SaveFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yields.json")
	store := NewFileStore(path, RetentionWindow)
	require.NoError(t, store.Save(sampleDocument()))

	// A directory in place of the target makes the rename fail.
	blocked := NewFileStore(filepath.Join(dir, "sub"), RetentionWindow)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "child"), 0o755))
	assert.Error(t, blocked.Save(sampleDocument()))

	assert.Equal(t, "cnbc", store.Load().Source)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2, "only the document and the blocking directory remain")
}
