// Package history maintains the bounded, date-keyed log of daily spread
// readings and the document file it is persisted in.
package history

import (
	"sort"

	"github.com/sells-group/spreadwatch/internal/model"
)

// RetentionWindow is the default number of daily entries kept.
const RetentionWindow = 30

// Entry is one day's reading of the benchmark pair and their spread.
type Entry struct {
	Date    string  `json:"date"`
	BTP10Y  float64 `json:"btp10y"`
	Bund10Y float64 `json:"bund10y"`
	Spread  int     `json:"spread"`
}

// EntryFromSnapshot builds the log entry for a snapshot's acquisition date.
func EntryFromSnapshot(s *model.Snapshot) Entry {
	return Entry{
		Date:    s.AsOf,
		BTP10Y:  s.Fields[model.BTP10Y].Value,
		Bund10Y: s.Fields[model.Bund10Y].Value,
		Spread:  s.SpreadBasisPoints,
	}
}

// Upsert returns a copy of log with e recorded. An entry with the same date
// is replaced in place; otherwise e is inserted in date order. The oldest
// entries beyond window are evicted. log itself is never modified.
func Upsert(log []Entry, e Entry, window int) []Entry {
	out := make([]Entry, len(log), len(log)+1)
	copy(out, log)

	for i := range out {
		if out[i].Date == e.Date {
			out[i] = e
			return trim(out, window)
		}
	}

	// Appending is the common case; back-filled dates are inserted in order.
	i := len(out)
	if i > 0 && e.Date < out[i-1].Date {
		i = sort.Search(len(out), func(j int) bool { return out[j].Date > e.Date })
	}
	out = append(out, Entry{})
	copy(out[i+1:], out[i:])
	out[i] = e
	return trim(out, window)
}

// Normalize repairs a loaded log: entries without a date are dropped, the
// rest sorted by date, and duplicates collapsed keeping the last occurrence.
func Normalize(log []Entry, window int) []Entry {
	last := make(map[string]Entry, len(log))
	for _, e := range log {
		if e.Date == "" {
			continue
		}
		last[e.Date] = e
	}
	out := make([]Entry, 0, len(last))
	for _, e := range last {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return trim(out, window)
}

func trim(log []Entry, window int) []Entry {
	if window <= 0 {
		window = RetentionWindow
	}
	if len(log) > window {
		log = log[len(log)-window:]
	}
	return log
}
