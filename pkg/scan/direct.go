package scan

import (
	"github.com/exploopio/npm-audit/pkg/compromised"
	"github.com/exploopio/npm-audit/pkg/manifest"
)

// DependencySections are the package.json sections merged by CheckDirect,
// in merge order.
var DependencySections = []string{
	"dependencies",
	"devDependencies",
	"optionalDependencies",
	"peerDependencies",
}

// MergeDeclared merges the dependency sections of pkg into one name→spec
// object. A name declared in several sections keeps its first position and
// the spec from the last section (last write wins). Sections that are not
// objects are ignored.
func MergeDeclared(pkg *manifest.Value) *manifest.Value {
	merged := manifest.NewObject()
	for _, section := range DependencySections {
		for _, m := range pkg.ObjectField(section).Members() {
			merged.Set(m.Key, m.Value)
		}
	}
	return merged
}

// CheckDirect reports every declared dependency whose name is in table.
func CheckDirect(pkg *manifest.Value, table *compromised.Table) []DirectMatch {
	if !pkg.IsObject() {
		return nil
	}

	var results []DirectMatch
	for _, m := range MergeDeclared(pkg).Members() {
		entry, ok := table.Lookup(m.Key)
		if !ok {
			continue
		}
		match := DirectMatch{
			Package:             m.Key,
			DeclaredVersionSpec: m.Value,
		}
		if entry.IsUnrestricted() {
			match.Matched = MatchedAnyVersion
		} else {
			match.Matched = MatchedSomeVersions
			match.CompromisedVersions = entry.VersionList()
		}
		results = append(results, match)
	}
	return results
}
