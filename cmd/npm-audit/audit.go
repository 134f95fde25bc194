package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/exploopio/npm-audit/pkg/auditor"
	"github.com/exploopio/npm-audit/pkg/config"
	"github.com/exploopio/npm-audit/pkg/core"
	"github.com/exploopio/npm-audit/pkg/eventlog"
	"github.com/exploopio/npm-audit/pkg/history"
	"github.com/exploopio/npm-audit/pkg/metrics"
)

// auditFlags mirrors the settings in config.Config. A flag only overrides
// the file and environment when it was given explicitly.
type auditFlags struct {
	configPath  string
	envFile     string
	compromised string
	project     string
	out         string
	sarif       string
	history     string
	metricsFile string
	eventLog    string
	logLevel    string
	logFormat   string
	noColor     bool
	failOnMatch bool
	maxDepth    int
	maxVisits   int
}

func (f *auditFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file with NPM_AUDIT_* variables (ignored when missing)")
	fs.StringVarP(&f.compromised, "compromised", "c", "", "file with compromised package names (name or name@version per line) (required)")
	fs.StringVarP(&f.project, "project", "p", config.DefaultProject, "path to project root (containing package.json/package-lock.json)")
	fs.StringVarP(&f.out, "out", "o", config.DefaultOut, "output JSON report path (.zst or .gz to compress)")
	fs.StringVar(&f.sarif, "sarif", "", "also write a SARIF 2.1.0 log to this path")
	fs.StringVar(&f.history, "history", "", "SQLite database recording runs, used to report new matches")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	fs.StringVar(&f.eventLog, "event-log", "", "append JSON-lines run events to this file")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error, silent)")
	fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "log format (console, json)")
	fs.BoolVar(&f.noColor, "no-color", false, "disable coloured output")
	fs.BoolVar(&f.failOnMatch, "fail-on-match", false, "exit with status 2 when any match is found")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "maximum dependency path length in the lockfile walk")
	fs.IntVar(&f.maxVisits, "max-visits", 0, "maximum lockfile nodes inspected")
}

// resolve layers defaults, config file, environment and explicit flags.
func (f *auditFlags) resolve(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("compromised") {
		cfg.Compromised = f.compromised
	}
	if changed("project") {
		cfg.Project = f.project
	}
	if changed("out") {
		cfg.Out = f.out
	}
	if changed("sarif") {
		cfg.SARIF = f.sarif
	}
	if changed("history") {
		cfg.History = f.history
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if changed("event-log") {
		cfg.EventLog = f.eventLog
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("no-color") {
		cfg.Log.NoColor = f.noColor
	}
	if changed("fail-on-match") {
		cfg.FailOnMatch = f.failOnMatch
	}
	if changed("max-depth") {
		cfg.Traversal.MaxDepth = f.maxDepth
	}
	if changed("max-visits") {
		cfg.Traversal.MaxVisits = f.maxVisits
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) core.Logger {
	level, _ := core.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.Format == "json" {
		return core.NewZerologLogger(w, level, true)
	}
	return core.NewConsoleLogger(w, level, cfg.Log.NoColor)
}

func runAudit(cmd *cobra.Command, flags *auditFlags, stdout, stderr io.Writer) error {
	cfg, err := flags.resolve(cmd)
	if err != nil {
		return err
	}
	if cfg.Log.NoColor {
		color.NoColor = true
	}
	logger := newLogger(cfg, stderr)

	opts := []auditor.Option{
		auditor.WithLogger(logger),
		auditor.WithVersion(version),
	}

	if cfg.MetricsFile != "" {
		collector := metrics.NewPrometheusCollector()
		opts = append(opts, auditor.WithMetrics(collector))
		defer func() {
			// failed runs are recorded too
			if werr := collector.WriteTextfile(cfg.MetricsFile); werr != nil {
				logger.Warn("write metrics %s: %v", cfg.MetricsFile, werr)
			}
		}()
	}

	if cfg.EventLog != "" {
		events, err := eventlog.Open(eventlog.Config{Path: cfg.EventLog})
		if err != nil {
			return err
		}
		opts = append(opts, auditor.WithEventLog(events))
		defer func() {
			if cerr := events.Close(); cerr != nil {
				logger.Warn("close event log: %v", cerr)
			}
		}()
	}

	if cfg.History != "" {
		store, err := history.Open(cfg.History)
		if err != nil {
			return err
		}
		opts = append(opts, auditor.WithHistory(store))
		defer store.Close()
	}

	a, err := auditor.New(cfg, opts...)
	if err != nil {
		return err
	}
	res, err := a.Run(cmd.Context())
	if err != nil {
		return err
	}

	printResult(stdout, cfg, res)

	if cfg.FailOnMatch && res.Report.HasMatches() {
		return &exitCodeError{code: exitMatched}
	}
	return nil
}

func printResult(w io.Writer, cfg *config.Config, res *auditor.Result) {
	summary := color.New(color.FgGreen)
	if res.Report.HasMatches() {
		summary = color.New(color.FgRed, color.Bold)
	}

	fmt.Fprintln(w, "Audit complete.")
	summary.Fprintln(w, res.Report.Summary)
	fmt.Fprintf(w, "Full JSON report written to: %s\n", cfg.Out)

	if cfg.SARIF != "" {
		fmt.Fprintf(w, "SARIF log written to: %s\n", cfg.SARIF)
	}
	if res.NewFindings != nil {
		fmt.Fprintf(w, "New since previous run: %d\n", len(res.NewFindings))
	}
	if res.Truncated {
		color.New(color.FgYellow).Fprintf(w, "Warning: lockfile traversal stopped early after %d nodes; raise --max-depth/--max-visits for a complete walk\n", res.Visited)
	}
}
