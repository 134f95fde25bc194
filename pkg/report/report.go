// Package report assembles and writes the audit report document.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/exploopio/npm-audit/pkg/compress"
	"github.com/exploopio/npm-audit/pkg/compromised"
	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/scan"
)

// NoMatchesSummary is the summary of a clean audit.
const NoMatchesSummary = "No matches found in package.json or package-lock.json."

// Report is the JSON document written at the end of an audit. Field order
// is the order keys appear in the output.
type Report struct {
	ProjectPath        string             `json:"project_path"`
	PackageJSONPresent bool               `json:"package_json_present"`
	PackageLockPresent bool               `json:"package_lock_present"`
	CompromisedInput   *compromised.Table `json:"compromised_input"`
	DirectMatches      []scan.DirectMatch `json:"direct_matches"`
	LockfileMatches    []scan.Match       `json:"lockfile_matches"`
	Summary            string             `json:"summary"`
}

// Input carries everything Build needs.
type Input struct {
	// ProjectDir is made absolute by Build.
	ProjectDir         string
	PackageJSONPresent bool
	PackageLockPresent bool
	Compromised        *compromised.Table
	Direct             []scan.DirectMatch
	Lockfile           []scan.Match
}

// Build assembles a report. Missing match lists become empty arrays.
func Build(in Input) (*Report, error) {
	abs, err := filepath.Abs(in.ProjectDir)
	if err != nil {
		return nil, errors.E(errors.KindIO, "report.Build", "resolve project path", err)
	}

	table := in.Compromised
	if table == nil {
		table = compromised.NewTable()
	}
	direct := in.Direct
	if direct == nil {
		direct = []scan.DirectMatch{}
	}
	lockfile := in.Lockfile
	if lockfile == nil {
		lockfile = []scan.Match{}
	}

	return &Report{
		ProjectPath:        abs,
		PackageJSONPresent: in.PackageJSONPresent,
		PackageLockPresent: in.PackageLockPresent,
		CompromisedInput:   table,
		DirectMatches:      direct,
		LockfileMatches:    lockfile,
		Summary:            Summary(len(direct), len(lockfile)),
	}, nil
}

// Summary renders the one-line human summary.
func Summary(direct, lockfile int) string {
	var parts []string
	if direct > 0 {
		parts = append(parts, fmt.Sprintf("Direct references found: %d", direct))
	}
	if lockfile > 0 {
		parts = append(parts, fmt.Sprintf("Transitive/lockfile matches found: %d", lockfile))
	}
	if len(parts) == 0 {
		return NoMatchesSummary
	}
	return strings.Join(parts, "; ")
}

// HasMatches reports whether the audit found anything.
func (r *Report) HasMatches() bool {
	return len(r.DirectMatches) > 0 || len(r.LockfileMatches) > 0
}

// Encode renders r as JSON indented with two spaces.
func (r *Report) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, errors.E(errors.KindInternal, "report.Encode", err)
	}
	return buf.Bytes(), nil
}

// Write encodes r to path. A ".zst" or ".gz" extension compresses the
// output. The file is replaced if it exists.
func Write(r *Report, path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// WriteFile writes data to path, compressed by extension.
func WriteFile(path string, data []byte) error {
	out, err := compress.Compress(compress.AlgorithmForPath(path), data)
	if err != nil {
		return errors.E(errors.KindInternal, "report.Write", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.E(errors.KindIO, "report.Write", fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// ReadFile returns the contents of a file written by WriteFile,
// decompressed by extension.
func ReadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(errors.KindIO, "report.Read", fmt.Sprintf("read %s", path), err)
	}
	data, err := compress.Decompress(compress.AlgorithmForPath(path), raw)
	if err != nil {
		return nil, errors.E(errors.KindParse, "report.Read", fmt.Sprintf("decompress %s", path), err)
	}
	return data, nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.E(errors.KindParse, "report.Read", fmt.Sprintf("%s is not a report", path), err)
	}
	if r.CompromisedInput == nil {
		r.CompromisedInput = compromised.NewTable()
	}
	return &r, nil
}
