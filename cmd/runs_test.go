package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/spreadwatch/internal/model"
)

func sampleRuns(now time.Time) []model.Run {
	return []model.Run{
		{
			ID: "0a1b2c3d-aaaa-bbbb-cccc-000000000001", AsOf: "2026-10-19", Status: model.RunStatusComplete,
			Source: "cnbc", SpreadBps: 96, StartedAt: now.Add(-time.Hour), FinishedAt: now.Add(-time.Hour + 2*time.Second),
			Attempts: []model.SourceAttempt{{Source: "cnbc", Status: "ok"}},
		},
		{
			ID: "0a1b2c3d-aaaa-bbbb-cccc-000000000002", AsOf: "2026-10-19", Status: model.RunStatusPartial,
			Source: "investing+teleborsa+baseline", SpreadBps: 100, StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2*time.Hour + 4*time.Second),
			Attempts: []model.SourceAttempt{
				{Source: "cnbc", Status: "blocked"},
				{Source: "investing", Status: "ok"},
				{Source: "teleborsa", Status: "ok"},
			},
		},
		{
			ID: "0a1b2c3d-aaaa-bbbb-cccc-000000000003", AsOf: "2026-10-18", Status: model.RunStatusFailed,
			Error: "pipeline: persist document", StartedAt: now.Add(-3 * time.Hour), FinishedAt: now.Add(-3 * time.Hour),
		},
		{
			ID: "old", AsOf: "2026-09-01", Status: model.RunStatusStale, Source: "fallback", SpreadBps: 61,
			StartedAt: now.Add(-30 * 24 * time.Hour), FinishedAt: now.Add(-30 * 24 * time.Hour),
		},
	}
}

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	s := computeRunStats(sampleRuns(now), 24*time.Hour, now)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Complete)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Stale)
	assert.InDelta(t, 98.0, s.AvgSpread, 0.001)
	assert.InDelta(t, 2.0, s.AvgDurSecs, 0.001)
	assert.Equal(t, map[string]int{"cnbc": 1, "investing": 1, "teleborsa": 1}, s.SourceOK)

	all := computeRunStats(sampleRuns(now), 0, now)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 1, all.Stale)
}

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatRunsList(&buf, sampleRuns(now))

	out := buf.String()
	assert.Contains(t, out, "0a1b2c3d")
	assert.NotContains(t, out, "0a1b2c3d-aaaa")
	assert.Contains(t, out, "investing+teleborsa+baseline")
	assert.Contains(t, out, "2s")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 2, Complete: 1, Failed: 1, AvgSpread: 96, SourceOK: map[string]int{"teleborsa": 1, "cnbc": 2}})

	out := buf.String()
	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "96.0 bp")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("cnbc ok")), bytes.Index(buf.Bytes(), []byte("teleborsa ok")))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0a1b2c3d", truncateID("0a1b2c3d-aaaa"))
	assert.Equal(t, "short", truncateID("short"))
}
