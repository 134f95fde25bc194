// Package sarif exports an audit report as a SARIF 2.1.0 log so code
// scanning dashboards can display the matches.
package sarif

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/fingerprint"
	"github.com/exploopio/npm-audit/pkg/manifest"
	"github.com/exploopio/npm-audit/pkg/report"
	"github.com/exploopio/npm-audit/pkg/scan"
)

const (
	Version = "2.1.0"
	Schema  = "https://json.schemastore.org/sarif-2.1.0.json"

	ToolName = "npm-audit"

	// RuleID is the single rule every result refers to.
	RuleID = "compromised-package"

	// FingerprintKey names the partial fingerprint carried on each result.
	FingerprintKey = "npmAuditMatch/v1"

	// ProjectRoot is the uriBaseId results are relative to.
	ProjectRoot = "PROJECTROOT"
)

// Log is the root SARIF document.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single run of a tool.
type Run struct {
	Tool               Tool                        `json:"tool"`
	Results            []Result                    `json:"results"`
	OriginalURIBaseIDs map[string]ArtifactLocation `json:"originalUriBaseIds,omitempty"`
	Invocations        []Invocation                `json:"invocations,omitempty"`
}

// Tool describes the tool.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains tool metadata.
type Driver struct {
	Name           string `json:"name"`
	Version        string `json:"version,omitempty"`
	InformationURI string `json:"informationUri,omitempty"`
	Rules          []Rule `json:"rules,omitempty"`
}

// Rule describes a rule/check.
type Rule struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	ShortDescription     *Message       `json:"shortDescription,omitempty"`
	FullDescription      *Message       `json:"fullDescription,omitempty"`
	DefaultConfiguration *RuleConfig    `json:"defaultConfiguration,omitempty"`
	Properties           map[string]any `json:"properties,omitempty"`
}

// RuleConfig holds rule configuration.
type RuleConfig struct {
	Level string `json:"level,omitempty"`
}

// Result represents a finding.
type Result struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level,omitempty"`
	Message             Message           `json:"message"`
	Locations           []Location        `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          map[string]any    `json:"properties,omitempty"`
}

// Message holds text.
type Message struct {
	Text string `json:"text"`
}

// Location represents a file location.
type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
}

// PhysicalLocation contains file info.
type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
}

// ArtifactLocation contains a file path.
type ArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

// Invocation contains execution details.
type Invocation struct {
	ExecutionSuccessful bool `json:"executionSuccessful"`
}

// FromReport converts r into a SARIF log. Direct matches point at
// package.json, lockfile matches at package-lock.json.
func FromReport(r *report.Report, toolVersion string) *Log {
	run := Run{
		Tool: Tool{Driver: Driver{
			Name:    ToolName,
			Version: toolVersion,
			Rules: []Rule{{
				ID:               RuleID,
				Name:             "CompromisedPackage",
				ShortDescription: &Message{Text: "Dependency on a compromised npm package"},
				FullDescription: &Message{Text: "The project declares or resolves a package " +
					"that appears on the supplied list of compromised packages."},
				DefaultConfiguration: &RuleConfig{Level: "error"},
				Properties:           map[string]any{"tags": []string{"security", "supply-chain"}},
			}},
		}},
		Results:     make([]Result, 0, len(r.DirectMatches)+len(r.LockfileMatches)),
		Invocations: []Invocation{{ExecutionSuccessful: true}},
	}
	if r.ProjectPath != "" {
		run.OriginalURIBaseIDs = map[string]ArtifactLocation{
			ProjectRoot: {URI: fileURI(r.ProjectPath)},
		}
	}

	for _, m := range r.DirectMatches {
		run.Results = append(run.Results, directResult(m))
	}
	for _, m := range r.LockfileMatches {
		run.Results = append(run.Results, lockfileResult(m))
	}

	return &Log{
		Version: Version,
		Schema:  Schema,
		Runs:    []Run{run},
	}
}

func directResult(m scan.DirectMatch) Result {
	spec := specText(m.DeclaredVersionSpec)
	text := fmt.Sprintf("package.json declares compromised package %s (%s)", m.Package, spec)
	if m.Matched == scan.MatchedSomeVersions {
		text += fmt.Sprintf("; flagged versions: %s", strings.Join(m.CompromisedVersions, ", "))
	}
	return Result{
		RuleID:    RuleID,
		Level:     "error",
		Message:   Message{Text: text},
		Locations: location(manifest.PackageJSON),
		PartialFingerprints: map[string]string{
			FingerprintKey: fingerprint.Direct(m.Package, spec),
		},
		Properties: map[string]any{
			"package": m.Package,
			"matched": string(m.Matched),
		},
	}
}

func lockfileResult(m scan.Match) Result {
	version := ""
	if m.Version != nil {
		version = *m.Version
	}
	text := fmt.Sprintf("package-lock.json resolves compromised package %s", m.Package)
	if version != "" {
		text += "@" + version
	}
	text += " via " + strings.Join(m.Path, " > ")
	return Result{
		RuleID:    RuleID,
		Level:     "error",
		Message:   Message{Text: text},
		Locations: location(manifest.PackageLockJSON),
		PartialFingerprints: map[string]string{
			FingerprintKey: fingerprint.Lockfile(m.Package, version, m.Path),
		},
		Properties: map[string]any{
			"package": m.Package,
			"path":    m.Path,
		},
	}
}

func location(file string) []Location {
	return []Location{{PhysicalLocation: &PhysicalLocation{
		ArtifactLocation: &ArtifactLocation{URI: file, URIBaseID: ProjectRoot},
	}}}
}

// specText renders a declared spec for messages: strings as-is, anything
// else as compact JSON.
func specText(v *manifest.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v.Kind().String()
	}
	return string(data)
}

func fileURI(dir string) string {
	dir = strings.ReplaceAll(dir, "\\", "/")
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return "file://" + dir
}

// Encode renders l as indented JSON.
func (l *Log) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return nil, errors.E(errors.KindInternal, "sarif.Encode", err)
	}
	return buf.Bytes(), nil
}

// Write encodes l to path, compressed by extension like the JSON report.
func Write(l *Log, path string) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	return report.WriteFile(path, data)
}
