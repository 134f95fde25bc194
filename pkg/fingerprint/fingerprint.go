// Package fingerprint derives stable identifiers for audit matches so the
// same finding can be recognised across runs, in SARIF output and in the
// history store.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Type distinguishes matches found in package.json from those found in the
// lockfile.
type Type string

const (
	TypeDirect   Type = "direct"
	TypeLockfile Type = "lockfile"
)

// Input contains the data a fingerprint is derived from.
type Input struct {
	Type Type

	// Package is the flagged package name.
	Package string

	// Version is the resolved version for lockfile matches, or the declared
	// spec for direct ones. Empty when unknown.
	Version string

	// Path is the dependency chain from the project root.
	Path []string
}

// Generate returns the SHA-256 (64 hex characters) of
// "type:package:version:path", where path is joined with ">".
func Generate(in Input) string {
	typ := in.Type
	if typ == "" {
		typ = TypeLockfile
	}
	var b strings.Builder
	b.WriteString(string(typ))
	b.WriteByte(':')
	b.WriteString(normalize(in.Package))
	b.WriteByte(':')
	b.WriteString(strings.TrimSpace(in.Version))
	b.WriteByte(':')
	for i, p := range in.Path {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(normalize(p))
	}
	return Hash(b.String())
}

// Direct fingerprints a package.json match.
func Direct(pkg, declared string) string {
	return Generate(Input{Type: TypeDirect, Package: pkg, Version: declared})
}

// Lockfile fingerprints a lockfile match.
func Lockfile(pkg, version string, path []string) string {
	return Generate(Input{Type: TypeLockfile, Package: pkg, Version: version, Path: path})
}

// Hash returns the hex SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Short returns the first 16 characters of a fingerprint.
func Short(fp string) string {
	if len(fp) <= 16 {
		return fp
	}
	return fp[:16]
}

// npm names are lowercase; registries compare them case-insensitively.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
