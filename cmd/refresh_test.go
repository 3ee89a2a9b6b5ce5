package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spreadwatch/internal/config"
	"github.com/sells-group/spreadwatch/internal/history"
	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/resilience"
	"github.com/sells-group/spreadwatch/internal/waterfall/provider"
)

const quoteFixture = `{"FormattedQuoteResult":{"FormattedQuote":[
 {"symbol":"IT2Y","last":"2.301%","change":"+0.011"},
 {"symbol":"IT5Y","last":"2.874%","change":"-0.004"},
 {"symbol":"IT10Y","last":"3.612%","change":"+0.041"},
 {"symbol":"IT30Y","last":"4.402%","change":"UNCH"},
 {"symbol":"DE10Y","last":"2.634%","change":"-0.012"}
]}}`

// setupConfig points every source at a local test server and keeps all
// output under a temp dir.
func setupConfig(t *testing.T, handler http.Handler, disable ...string) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	sources := "waterfall:\n  defaults:\n    politeness_delay_ms: -1\n    source_timeout_secs: 5\n  sources:\n"
	for _, name := range []string{provider.SourceCNBC, provider.SourceInvesting, provider.SourceTeleborsa, provider.SourceMarketWatch} {
		sources += fmt.Sprintf("    - name: %s\n      url: %s/%s\n", name, srv.URL, name)
		for _, d := range disable {
			if d == name {
				sources += "      enabled: false\n"
			}
		}
	}
	sourcesPath := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(sourcesPath, []byte(sources), 0o644))

	c, err := config.Load()
	require.NoError(t, err)
	c.Output.Path = filepath.Join(dir, "out", "yields.json")
	c.Output.Timezone = "UTC"
	c.Waterfall.SourcesFile = sourcesPath
	c.Store.DatabaseURL = filepath.Join(dir, "db", "runs.db")
	c.Fetch.Retry.MaxAttempts = 1

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return dir
}

func TestRefresh_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cnbc", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(quoteFixture))
	})
	setupConfig(t, mux)

	ctx := context.Background()
	env, err := initRefresh(ctx, "refresh", nil)
	require.NoError(t, err)
	defer env.Close()

	asOf := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	result, err := env.Pipeline.Run(ctx, asOf)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, result.Status)
	require.Len(t, result.Attempts, 4)
	assert.Equal(t, provider.SourceCNBC, result.Attempts[0].Source)

	doc := env.Docs.Load()
	assert.Equal(t, "2026-10-19", doc.AsOf)
	assert.Equal(t, "cnbc", doc.Source)
	assert.False(t, doc.Stale)
	assert.Equal(t, 98, doc.SpreadBasisPoints)
	assert.Equal(t, []history.Entry{{Date: "2026-10-19", BTP10Y: 3.612, Bund10Y: 2.634, Spread: 98}}, doc.History)

	require.NotNil(t, env.Store)
	run, err := env.Store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	var buf bytes.Buffer
	formatRefreshResult(&buf, result)
	assert.Contains(t, buf.String(), "98 bp")
	assert.Contains(t, buf.String(), "skipped")
}

func TestRefresh_AllSourcesDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	})
	setupConfig(t, mux)
	cfg.Store.Driver = "none"

	env, err := initRefresh(context.Background(), "refresh", nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Store)

	result, err := env.Pipeline.Run(context.Background(), time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err, "source failures never fail a run")
	assert.Equal(t, model.RunStatusStale, result.Status)
	assert.Equal(t, model.LabelFallback, result.Document.Source)
	assert.True(t, result.Document.Stale)
	assert.Equal(t, 61, result.Document.SpreadBasisPoints)
}

func TestRefresh_AuditStoreUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cnbc", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(quoteFixture))
	})
	dir := setupConfig(t, mux)
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Store.DatabaseURL = filepath.Join(blocker, "runs.db")

	env, err := initRefresh(context.Background(), "refresh", nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Store)

	result, err := env.Pipeline.Run(context.Background(), time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, result.Status)
	assert.Empty(t, result.RunID)
	assert.Equal(t, 98, env.Docs.Load().SpreadBasisPoints)
}

func TestBuildRegistry_DisabledSource(t *testing.T) {
	setupConfig(t, http.NotFoundHandler(), provider.SourceMarketWatch)

	wcfg, reg, err := buildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{provider.SourceCNBC, provider.SourceInvesting, provider.SourceTeleborsa}, reg.Names())
	assert.Equal(t, time.Duration(0), wcfg.PolitenessDelay())

	var buf bytes.Buffer
	formatSources(&buf, wcfg, reg)
	assert.Contains(t, buf.String(), "teleborsa")
	assert.NotContains(t, buf.String(), "marketwatch")
}

func TestFormatHistory_NewestFirst(t *testing.T) {
	var buf bytes.Buffer
	formatHistory(&buf, []history.Entry{
		{Date: "2026-10-16", BTP10Y: 3.5, Bund10Y: 2.6, Spread: 90},
		{Date: "2026-10-17", BTP10Y: 3.6, Bund10Y: 2.6, Spread: 100},
	})
	out := buf.Bytes()
	assert.Less(t, bytes.Index(out, []byte("2026-10-17")), bytes.Index(out, []byte("2026-10-16")))
}

func TestOpenCircuits(t *testing.T) {
	got := openCircuits(map[string]resilience.CircuitState{
		"teleborsa": resilience.CircuitOpen,
		"cnbc":      resilience.CircuitClosed,
		"investing": resilience.CircuitHalfOpen,
	})
	assert.Equal(t, []string{"investing=half-open", "teleborsa=open"}, got)
}

func TestFieldList(t *testing.T) {
	assert.Equal(t, "-", fieldList(nil))
	assert.Equal(t, "btp10y", fieldList([]model.FieldKey{model.BTP10Y}))
	assert.Equal(t, "btp2y,bund10y", fieldList([]model.FieldKey{model.BTP2Y, model.Bund10Y}))
}
