// Package config loads npm-audit settings.
//
// Settings are layered, each layer overriding the previous one:
//
//  1. built-in defaults
//  2. a YAML file (${VAR} references are expanded from the environment)
//  3. NPM_AUDIT_* environment variables, optionally seeded from a .env file
//  4. command-line flags, applied by the caller
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/exploopio/npm-audit/pkg/core"
	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/scan"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NPM_AUDIT_"

const (
	DefaultProject   = "."
	DefaultOut       = "audit_report.json"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Config holds the settings of one audit run.
type Config struct {
	// Compromised is the path of the compromised package list. Required.
	Compromised string `yaml:"compromised"`
	Project     string `yaml:"project"`
	Out         string `yaml:"out"`

	SARIF       string `yaml:"sarif"`
	History     string `yaml:"history"`
	MetricsFile string `yaml:"metrics_file"`
	EventLog    string `yaml:"event_log"`

	// FailOnMatch makes the CLI exit with status 2 when anything matched.
	FailOnMatch bool `yaml:"fail_on_match"`

	Log struct {
		Level   string `yaml:"level"`
		Format  string `yaml:"format"` // console or json
		NoColor bool   `yaml:"no_color"`
	} `yaml:"log"`

	Traversal struct {
		MaxDepth  int `yaml:"max_depth"`
		MaxVisits int `yaml:"max_visits"`
	} `yaml:"traversal"`
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{
		Project: DefaultProject,
		Out:     DefaultOut,
	}
	cfg.Log.Level = DefaultLogLevel
	cfg.Log.Format = DefaultLogFormat
	cfg.Traversal.MaxDepth = scan.DefaultMaxDepth
	cfg.Traversal.MaxVisits = scan.DefaultMaxVisits
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(errors.KindConfig, "config.Load", "read config", err)
	}
	if err := cfg.decode(bytes.NewReader([]byte(os.ExpandEnv(string(data))))); err != nil {
		return nil, errors.E(errors.KindConfig, "config.Load", fmt.Sprintf("parse %s", path), err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.E(errors.KindConfig, "config.LoadDotEnv", err)
	}
	return nil
}

// ApplyEnv overrides c from NPM_AUDIT_* variables found by lookup
// (os.LookupEnv in production). NO_COLOR disables colours.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("COMPROMISED", &c.Compromised)
	str("PROJECT", &c.Project)
	str("OUT", &c.Out)
	str("SARIF", &c.SARIF)
	str("HISTORY", &c.History)
	str("METRICS_FILE", &c.MetricsFile)
	str("EVENT_LOG", &c.EventLog)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	var errs []string
	boolean := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
			return
		}
		*dst = b
	}
	integer := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	boolean("FAIL_ON_MATCH", &c.FailOnMatch)
	boolean("NO_COLOR", &c.Log.NoColor)
	integer("MAX_DEPTH", &c.Traversal.MaxDepth)
	integer("MAX_VISITS", &c.Traversal.MaxVisits)

	if _, ok := lookup("NO_COLOR"); ok {
		c.Log.NoColor = true
	}

	if len(errs) > 0 {
		return errors.E(errors.KindConfig, "config.ApplyEnv", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that c can drive an audit.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Compromised) == "" {
		return errors.ErrMissingCompromisedList
	}
	err := core.NewValidator().
		Required("out", c.Out).
		LogLevel("log.level", c.Log.Level).
		OneOf("log.format", c.Log.Format, []string{"console", "json"}).
		Min("traversal.max_depth", c.Traversal.MaxDepth, 1).
		Min("traversal.max_visits", c.Traversal.MaxVisits, 1).
		Validate()
	if err != nil {
		return errors.E(errors.KindConfig, "config.Validate", err)
	}
	return nil
}

// ScanOptions converts the traversal settings.
func (c *Config) ScanOptions(logger core.Logger) *scan.Options {
	return &scan.Options{
		MaxDepth:  c.Traversal.MaxDepth,
		MaxVisits: c.Traversal.MaxVisits,
		Logger:    logger,
	}
}
