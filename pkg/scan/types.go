// Package scan matches an npm project's manifests against a compromised table.
//
// CheckDirect looks at the names declared in package.json. ScanLockfile walks
// the resolved dependency tree in package-lock.json and records every
// occurrence of a flagged package together with the chain of names that
// leads to it from the project root.
package scan

import (
	"github.com/exploopio/npm-audit/pkg/core"
	"github.com/exploopio/npm-audit/pkg/manifest"
)

// DirectMatchKind says how precisely a declared dependency was matched.
type DirectMatchKind string

const (
	// MatchedAnyVersion means every version of the package is flagged.
	MatchedAnyVersion DirectMatchKind = "any-version"

	// MatchedSomeVersions means only specific versions are flagged. The
	// declared spec is a range or tag, so no exact comparison is attempted.
	MatchedSomeVersions DirectMatchKind = "some-versions-specified"
)

// DirectMatch is a flagged package named in package.json.
type DirectMatch struct {
	Package             string          `json:"package"`
	Matched             DirectMatchKind `json:"matched"`
	DeclaredVersionSpec *manifest.Value `json:"declared_version_spec"`
	CompromisedVersions []string        `json:"compromised_versions,omitempty"`
}

// Match is one flagged occurrence in the resolved dependency tree.
type Match struct {
	Package string   `json:"package"`
	Version *string  `json:"version"`
	Path    []string `json:"path"`
}

// Strategy names the lockfile traversal that produced a result.
type Strategy string

const (
	StrategyNone             Strategy = "none"
	StrategyResolutionTable  Strategy = "resolution-table"
	StrategyPackagePathTable Strategy = "package-path-table"
	StrategyNestedTree       Strategy = "nested-tree"
	StrategyUnstructured     Strategy = "unstructured"
)

// LockfileResult is the outcome of ScanLockfile.
type LockfileResult struct {
	Strategy Strategy
	Matches  []Match

	// Visited counts the tree nodes inspected.
	Visited int

	// Truncated is set when MaxDepth or MaxVisits stopped part of the walk.
	Truncated bool
}

const (
	DefaultMaxDepth  = 64
	DefaultMaxVisits = 1_000_000

	// ctxCheckInterval is how many visits pass between cancellation checks.
	ctxCheckInterval = 4096
)

// Options bounds the lockfile traversal.
type Options struct {
	// MaxDepth caps the length of a dependency path (default 64).
	MaxDepth int

	// MaxVisits caps the number of nodes inspected (default 1,000,000).
	MaxVisits int

	Logger core.Logger
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.MaxDepth <= 0 {
		out.MaxDepth = DefaultMaxDepth
	}
	if out.MaxVisits <= 0 {
		out.MaxVisits = DefaultMaxVisits
	}
	out.Logger = core.OrNop(out.Logger)
	return out
}

// extend returns path+name without aliasing path's backing array.
func extend(path []string, name string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = name
	return out
}
