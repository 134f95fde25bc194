// Package auditor runs a complete audit: load the compromised list, read the
// project manifests, match them, then write the report and its side outputs.
package auditor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/exploopio/npm-audit/pkg/compromised"
	"github.com/exploopio/npm-audit/pkg/config"
	"github.com/exploopio/npm-audit/pkg/core"
	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/eventlog"
	"github.com/exploopio/npm-audit/pkg/fingerprint"
	"github.com/exploopio/npm-audit/pkg/fsutil"
	"github.com/exploopio/npm-audit/pkg/history"
	"github.com/exploopio/npm-audit/pkg/manifest"
	"github.com/exploopio/npm-audit/pkg/metrics"
	"github.com/exploopio/npm-audit/pkg/report"
	"github.com/exploopio/npm-audit/pkg/sarif"
	"github.com/exploopio/npm-audit/pkg/scan"
)

// Run statuses, used as the status label of npm_audit_runs_total.
const (
	StatusClean   = "clean"
	StatusMatched = "matched"
	StatusFailed  = "failed"
)

// Result is the outcome of a successful run.
type Result struct {
	RunID  string
	Report *report.Report

	Strategy  scan.Strategy
	Visited   int
	Truncated bool

	// NewFindings holds matches absent from the previous recorded run of
	// the same project. Nil when no history store is configured.
	NewFindings []history.Finding

	Duration time.Duration
}

// Status classifies the run for metrics and exit codes.
func (r *Result) Status() string {
	if r.Report.HasMatches() {
		return StatusMatched
	}
	return StatusClean
}

// Auditor executes audits for one configuration.
type Auditor struct {
	cfg     *config.Config
	version string
	logger  core.Logger
	metrics metrics.Collector
	events  *eventlog.Logger
	history *history.Store
	newID   func() string
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(a *Auditor) { a.metrics = c }
}

// WithEventLog records run events to l. The caller owns l and closes it.
func WithEventLog(l *eventlog.Logger) Option {
	return func(a *Auditor) { a.events = l }
}

// WithHistory records each run in s. The caller owns s and closes it.
func WithHistory(s *history.Store) Option {
	return func(a *Auditor) { a.history = s }
}

// WithVersion sets the tool version written to SARIF output.
func WithVersion(v string) Option {
	return func(a *Auditor) { a.version = v }
}

// WithRunID fixes the run ID instead of generating a UUID.
func WithRunID(id string) Option {
	return func(a *Auditor) { a.newID = func() string { return id } }
}

// New validates cfg and returns an Auditor.
func New(cfg *config.Config, opts ...Option) (*Auditor, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Auditor{
		cfg:     cfg,
		version: "dev",
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = core.OrNop(a.logger)
	a.metrics = metrics.OrNop(a.metrics)
	return a, nil
}

// Run performs one audit. On failure the returned error carries a Kind
// from pkg/errors and no report is written.
func (a *Auditor) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	timer := metrics.NewTimer(a.metrics, metrics.RunDuration.Name)
	runID := a.newID()
	if a.events != nil {
		a.events.SetRunID(runID)
	}

	a.event(eventlog.SeverityInfo, eventlog.EventAuditStarted, "audit started", map[string]any{
		"project":     a.cfg.Project,
		"compromised": a.cfg.Compromised,
		"out":         a.cfg.Out,
	})

	res, err := a.run(ctx, runID)
	timer.ObserveDuration()
	if err != nil {
		a.metrics.CounterInc(metrics.RunsTotal.Name, "status", StatusFailed)
		if a.events != nil {
			_ = a.events.Error(eventlog.EventAuditFailed, "audit failed", err, nil)
		}
		return nil, err
	}

	res.Duration = time.Since(started)
	a.metrics.CounterInc(metrics.RunsTotal.Name, "status", res.Status())
	a.event(eventlog.SeverityInfo, eventlog.EventAuditCompleted, res.Report.Summary, map[string]any{
		"direct_matches":   len(res.Report.DirectMatches),
		"lockfile_matches": len(res.Report.LockfileMatches),
		"duration_ms":      res.Duration.Milliseconds(),
	})
	return res, nil
}

func (a *Auditor) run(ctx context.Context, runID string) (*Result, error) {
	if err := fsutil.CheckOutputPaths(a.cfg.Out, a.cfg.SARIF, a.cfg.MetricsFile); err != nil {
		return nil, err
	}
	if free, err := fsutil.FreeBytes(filepath.Dir(a.cfg.Out)); err == nil {
		a.logger.Debug("output directory has %d bytes free", free)
	}

	table, err := compromised.Load(a.cfg.Compromised)
	if err != nil {
		return nil, err
	}
	a.logger.Info("loaded %d compromised package names from %s", table.Len(), a.cfg.Compromised)
	a.metrics.GaugeSet(metrics.CompromisedEntries.Name, float64(table.Len()))
	a.event(eventlog.SeverityInfo, eventlog.EventCompromisedLoaded, "compromised list loaded", map[string]any{
		"path":  a.cfg.Compromised,
		"names": table.Len(),
	})

	project, err := manifest.LoadProject(a.cfg.Project)
	if err != nil {
		return nil, err
	}
	a.event(eventlog.SeverityInfo, eventlog.EventManifestLoaded, "project manifests loaded", map[string]any{
		"dir":                  project.Dir,
		"package_json_present": project.HasPackage,
		"package_lock_present": project.HasLockfile,
	})
	if !project.HasPackage && !project.HasLockfile {
		a.logger.Warn("neither %s nor %s found in %s", manifest.PackageJSON, manifest.PackageLockJSON, project.Dir)
	}

	res := &Result{RunID: runID, Strategy: scan.StrategyNone}

	var direct []scan.DirectMatch
	if project.HasPackage {
		direct = scan.CheckDirect(project.Package, table)
		a.logger.Debug("%s: %d direct matches", manifest.PackageJSON, len(direct))
	}

	var lockfile []scan.Match
	if project.HasLockfile {
		lr, err := scan.ScanLockfile(ctx, project.Lock, table, a.cfg.ScanOptions(a.logger))
		if err != nil {
			return nil, errors.E(errors.KindInternal, "auditor.Run", "lockfile traversal", err)
		}
		lockfile = lr.Matches
		res.Strategy = lr.Strategy
		res.Visited = lr.Visited
		res.Truncated = lr.Truncated
		a.metrics.CounterAdd(metrics.NodesVisitedTotal.Name, float64(lr.Visited), "strategy", string(lr.Strategy))
		a.logger.Debug("%s: strategy=%s visited=%d matches=%d", manifest.PackageLockJSON, lr.Strategy, lr.Visited, len(lr.Matches))
	}

	rep, err := report.Build(report.Input{
		ProjectDir:         a.cfg.Project,
		PackageJSONPresent: project.HasPackage,
		PackageLockPresent: project.HasLockfile,
		Compromised:        table,
		Direct:             direct,
		Lockfile:           lockfile,
	})
	if err != nil {
		return nil, err
	}
	res.Report = rep
	a.metrics.GaugeSet(metrics.DirectMatches.Name, float64(len(rep.DirectMatches)))
	a.metrics.GaugeSet(metrics.LockfileMatches.Name, float64(len(rep.LockfileMatches)))
	a.recordMatches(rep)

	if err := report.Write(rep, a.cfg.Out); err != nil {
		return nil, err
	}
	a.event(eventlog.SeverityInfo, eventlog.EventReportWritten, "report written", map[string]any{"path": a.cfg.Out})

	if a.cfg.SARIF != "" {
		if err := sarif.Write(sarif.FromReport(rep, a.version), a.cfg.SARIF); err != nil {
			return nil, err
		}
		a.event(eventlog.SeverityInfo, eventlog.EventReportWritten, "sarif written", map[string]any{"path": a.cfg.SARIF})
	}

	if a.history != nil {
		if err := a.recordHistory(ctx, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (a *Auditor) recordMatches(rep *report.Report) {
	// Findings lists direct matches first, then lockfile matches.
	findings := history.Findings(rep)
	for i, m := range rep.DirectMatches {
		a.logger.Warn("direct dependency on compromised package %s (%s)", m.Package, m.Matched)
		a.event(eventlog.SeverityWarning, eventlog.EventMatchFound, "direct match", map[string]any{
			"package":     m.Package,
			"matched":     string(m.Matched),
			"fingerprint": fingerprint.Short(findings[i].Fingerprint),
		})
	}
	for j, m := range rep.LockfileMatches {
		details := map[string]any{
			"package":     m.Package,
			"path":        m.Path,
			"fingerprint": fingerprint.Short(findings[len(rep.DirectMatches)+j].Fingerprint),
		}
		if m.Version != nil {
			details["version"] = *m.Version
		}
		a.event(eventlog.SeverityWarning, eventlog.EventMatchFound, "lockfile match", details)
	}
}

func (a *Auditor) recordHistory(ctx context.Context, res *Result) error {
	run, err := a.history.Record(ctx, history.Run{
		ID:            res.RunID,
		ProjectPath:   res.Report.ProjectPath,
		Strategy:      string(res.Strategy),
		DirectCount:   len(res.Report.DirectMatches),
		LockfileCount: len(res.Report.LockfileMatches),
		Summary:       res.Report.Summary,
	}, history.Findings(res.Report))
	if err != nil {
		return errors.E(errors.KindIO, "auditor.Run", "record history", err)
	}
	fresh, err := a.history.NewSincePrevious(ctx, run.ID)
	if err != nil {
		return errors.E(errors.KindIO, "auditor.Run", "compare history", err)
	}
	if fresh == nil {
		fresh = []history.Finding{}
	}
	res.NewFindings = fresh
	a.logger.Info("%d matches not seen in the previous run", len(fresh))
	return nil
}

func (a *Auditor) event(sev eventlog.Severity, typ eventlog.EventType, msg string, details map[string]any) {
	if a.events == nil {
		return
	}
	if err := a.events.Log(eventlog.Event{Type: typ, Severity: sev, Message: msg, Details: details}); err != nil {
		a.logger.Warn("event log: %v", err)
	}
}
