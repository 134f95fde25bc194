package auditor

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/npm-audit/pkg/config"
	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/eventlog"
	"github.com/exploopio/npm-audit/pkg/history"
	"github.com/exploopio/npm-audit/pkg/metrics"
	"github.com/exploopio/npm-audit/pkg/report"
	"github.com/exploopio/npm-audit/pkg/sarif"
	"github.com/exploopio/npm-audit/pkg/scan"
)

const packageJSON = `{
  "name": "demo",
  "dependencies": {"chalk": "^5.3.0", "express": "^4.18.0"},
  "devDependencies": {"debug": "^4.3.0"}
}`

const packageLock = `{
  "name": "demo",
  "lockfileVersion": 2,
  "packages": {"": {"name": "demo"}},
  "dependencies": {
    "chalk": {"version": "5.3.0"},
    "express": {"version": "4.18.2", "requires": {"debug": "2.6.9"}},
    "debug": {"version": "4.4.2"}
  }
}`

type bufferCloser struct{ bytes.Buffer }

func (b *bufferCloser) Close() error { return nil }

type fixture struct {
	dir         string
	project     string
	compromised string
	cfg         *config.Config
}

func newFixture(t *testing.T, list string, files map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	project := filepath.Join(dir, "project")
	require.NoError(t, os.Mkdir(project, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(project, name), []byte(content), 0o644))
	}
	listPath := filepath.Join(dir, "compromised.txt")
	require.NoError(t, os.WriteFile(listPath, []byte(list), 0o644))

	cfg := config.Default()
	cfg.Compromised = listPath
	cfg.Project = project
	cfg.Out = filepath.Join(dir, "audit_report.json")
	return &fixture{dir: dir, project: project, compromised: listPath, cfg: cfg}
}

// readReport returns the report at path as generic JSON so tests see the
// exact encoding.
func readReport(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := report.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.IsConfigError(err))

	_, err = New(config.Default())
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestRun_FullAudit(t *testing.T) {
	f := newFixture(t, "# incident list\nchalk\ndebug@4.4.2\n", map[string]string{
		"package.json":      packageJSON,
		"package-lock.json": packageLock,
	})
	f.cfg.SARIF = filepath.Join(f.dir, "audit.sarif")

	collector := metrics.NewInMemoryCollector()
	events := &bufferCloser{}
	elog := eventlog.New(events, eventlog.Config{})
	store, err := history.Open(filepath.Join(f.dir, "history.db"))
	require.NoError(t, err)
	defer store.Close()

	a, err := New(f.cfg,
		WithMetrics(collector),
		WithEventLog(elog),
		WithHistory(store),
		WithVersion("1.0.0"),
		WithRunID("run-1"),
	)
	require.NoError(t, err)

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, elog.Close())

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, StatusMatched, res.Status())
	assert.Equal(t, scan.StrategyResolutionTable, res.Strategy)
	assert.Equal(t, 4, res.Visited)
	assert.False(t, res.Truncated)

	// express requires debug, which resolves to the flagged 4.4.2 entry
	assert.Len(t, res.Report.DirectMatches, 2)
	assert.Equal(t, [][]string{{"chalk"}, {"debug"}, {"express", "debug"}}, lockPaths(res.Report.LockfileMatches))
	assert.Equal(t, "Direct references found: 2; Transitive/lockfile matches found: 3", res.Report.Summary)
	assert.Len(t, res.NewFindings, 5, "first recorded run: all findings are new")

	doc := readReport(t, f.cfg.Out)
	assert.Equal(t, res.Report.ProjectPath, doc["project_path"])
	assert.Equal(t, true, doc["package_json_present"])
	assert.Equal(t, true, doc["package_lock_present"])
	assert.Equal(t, map[string]any{"chalk": nil, "debug": []any{"4.4.2"}}, doc["compromised_input"])

	data, err := os.ReadFile(f.cfg.SARIF)
	require.NoError(t, err)
	var log sarif.Log
	require.NoError(t, json.Unmarshal(data, &log))
	assert.Len(t, log.Runs[0].Results, 5)
	assert.Equal(t, "1.0.0", log.Runs[0].Tool.Driver.Version)

	assert.Equal(t, 1.0, collector.GetCounter(metrics.RunsTotal.Name, "status", StatusMatched))
	assert.Equal(t, 2.0, collector.GetGauge(metrics.DirectMatches.Name))
	assert.Equal(t, 3.0, collector.GetGauge(metrics.LockfileMatches.Name))
	assert.Equal(t, 2.0, collector.GetGauge(metrics.CompromisedEntries.Name))
	assert.Equal(t, 4.0, collector.GetCounter(metrics.NodesVisitedTotal.Name, "strategy", string(scan.StrategyResolutionTable)))
	assert.Len(t, collector.GetHistogram(metrics.RunDuration.Name), 1)

	types := eventTypes(t, events.String())
	assert.Equal(t, eventlog.EventAuditStarted, types[0])
	assert.Equal(t, eventlog.EventAuditCompleted, types[len(types)-1])
	assert.Contains(t, types, eventlog.EventCompromisedLoaded)
	assert.Contains(t, types, eventlog.EventManifestLoaded)
	assert.Contains(t, types, eventlog.EventReportWritten)
	assert.Equal(t, 5, count(types, eventlog.EventMatchFound))

	// A second run of the unchanged project has nothing new.
	a2, err := New(f.cfg, WithHistory(store), WithRunID("run-2"))
	require.NoError(t, err)
	res2, err := a2.Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res2.NewFindings)
	assert.Empty(t, res2.NewFindings)
}

func TestRun_NoManifests(t *testing.T) {
	f := newFixture(t, "chalk\n", nil)

	a, err := New(f.cfg)
	require.NoError(t, err)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusClean, res.Status())
	assert.Equal(t, scan.StrategyNone, res.Strategy)
	assert.Nil(t, res.NewFindings)

	doc := readReport(t, f.cfg.Out)
	assert.Equal(t, false, doc["package_json_present"])
	assert.Equal(t, false, doc["package_lock_present"])
	assert.Equal(t, []any{}, doc["direct_matches"])
	assert.Equal(t, []any{}, doc["lockfile_matches"])
	assert.Equal(t, report.NoMatchesSummary, doc["summary"])
}

func TestRun_CompressedOutput(t *testing.T) {
	f := newFixture(t, "chalk\n", map[string]string{"package.json": packageJSON})
	f.cfg.Out = filepath.Join(f.dir, "audit_report.json.zst")

	a, err := New(f.cfg)
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	doc := readReport(t, f.cfg.Out)
	assert.Equal(t, "Direct references found: 1", doc["summary"])
}

func TestRun_Failures(t *testing.T) {
	t.Run("missing compromised list", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.cfg.Compromised = filepath.Join(f.dir, "nope.txt")
		collector := metrics.NewInMemoryCollector()

		a, err := New(f.cfg, WithMetrics(collector))
		require.NoError(t, err)
		_, err = a.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
		assert.NoFileExists(t, f.cfg.Out)
		assert.Equal(t, 1.0, collector.GetCounter(metrics.RunsTotal.Name, "status", StatusFailed))
	})

	t.Run("malformed compromised entry", func(t *testing.T) {
		f := newFixture(t, "chalk\nbroken@\n", nil)
		a, err := New(f.cfg)
		require.NoError(t, err)
		_, err = a.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsParseError(err))
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("invalid package.json", func(t *testing.T) {
		f := newFixture(t, "chalk\n", map[string]string{"package.json": `{"dependencies":`})
		events := &bufferCloser{}
		elog := eventlog.New(events, eventlog.Config{})

		a, err := New(f.cfg, WithEventLog(elog))
		require.NoError(t, err)
		_, err = a.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsParseError(err))
		assert.NoFileExists(t, f.cfg.Out)

		require.NoError(t, elog.Close())
		types := eventTypes(t, events.String())
		assert.Equal(t, eventlog.EventAuditFailed, types[len(types)-1])
	})

	t.Run("output directory missing", func(t *testing.T) {
		f := newFixture(t, "chalk\n", nil)
		f.cfg.Out = filepath.Join(f.dir, "missing", "report.json")

		a, err := New(f.cfg)
		require.NoError(t, err)
		_, err = a.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsIOError(err))
	})
}

func lockPaths(matches []scan.Match) [][]string {
	out := make([][]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Path)
	}
	return out
}

func eventTypes(t *testing.T, data string) []eventlog.EventType {
	t.Helper()
	var types []eventlog.EventType
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		var e eventlog.Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		types = append(types, e.Type)
	}
	return types
}

func count(types []eventlog.EventType, want eventlog.EventType) int {
	n := 0
	for _, typ := range types {
		if typ == want {
			n++
		}
	}
	return n
}
