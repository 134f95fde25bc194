// Package compromised loads the operator-supplied list of compromised npm
// packages into a lookup table.
//
// Each entry either flags every version of a package (Unrestricted) or a
// finite set of exact version strings. Unrestricted is absorbing: once a name
// is flagged for all versions, later name@version lines cannot narrow it.
package compromised

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/exploopio/npm-audit/pkg/manifest"
)

// EntryKind tags the variant held by an Entry.
type EntryKind uint8

const (
	// Unrestricted flags every version of the package.
	Unrestricted EntryKind = iota
	// Versions flags only the listed exact versions.
	Versions
)

func (k EntryKind) String() string {
	if k == Unrestricted {
		return "unrestricted"
	}
	return "versions"
}

// Entry is the table value for one package name.
type Entry struct {
	kind     EntryKind
	versions map[string]struct{}
}

// AnyVersion returns an Entry that flags every version.
func AnyVersion() Entry {
	return Entry{kind: Unrestricted}
}

// SomeVersions returns an Entry that flags the given exact versions.
func SomeVersions(versions ...string) Entry {
	e := Entry{kind: Versions, versions: make(map[string]struct{}, len(versions))}
	for _, v := range versions {
		e.versions[v] = struct{}{}
	}
	return e
}

// Kind returns the variant tag.
func (e Entry) Kind() EntryKind {
	return e.kind
}

// IsUnrestricted reports whether every version is flagged.
func (e Entry) IsUnrestricted() bool {
	return e.kind == Unrestricted
}

// VersionList returns the flagged versions sorted, or nil when unrestricted.
func (e Entry) VersionList() []string {
	if e.kind == Unrestricted {
		return nil
	}
	out := make([]string, 0, len(e.versions))
	for v := range e.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Matches applies the shared version policy: an unrestricted entry matches
// unconditionally, a finite entry only when version is non-nil and an exact
// member of the set.
func (e Entry) Matches(version *string) bool {
	if e.kind == Unrestricted {
		return true
	}
	if version == nil {
		return false
	}
	_, ok := e.versions[*version]
	return ok
}

// merge combines two entries for the same name.
func (e Entry) merge(other Entry) Entry {
	if e.kind == Unrestricted || other.kind == Unrestricted {
		return AnyVersion()
	}
	merged := SomeVersions(e.VersionList()...)
	for v := range other.versions {
		merged.versions[v] = struct{}{}
	}
	return merged
}

// MarshalJSON renders an unrestricted entry as null and a finite entry as a
// sorted array of versions.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.kind == Unrestricted {
		return []byte("null"), nil
	}
	return json.Marshal(e.VersionList())
}

// Table maps package names to entries. Lookups are exact: no scope or case
// normalization is applied. Names keep the order of first appearance.
type Table struct {
	entries map[string]Entry
	order   []string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Add records an entry, merging with any existing entry for name.
func (t *Table) Add(name string, e Entry) {
	if existing, ok := t.entries[name]; ok {
		t.entries[name] = existing.merge(e)
		return
	}
	t.entries[name] = e
	t.order = append(t.order, name)
}

// Lookup returns the entry for name.
func (t *Table) Lookup(name string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[name]
	return e, ok
}

// Matches reports whether name at version is flagged.
func (t *Table) Matches(name string, version *string) bool {
	e, ok := t.Lookup(name)
	return ok && e.Matches(version)
}

// Names returns the package names in insertion order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.order...)
}

// Len returns the number of distinct names.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// MarshalJSON writes the table as an object keyed in insertion order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := t.entries[name].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the form written by MarshalJSON: null for an
// unrestricted entry, an array of versions otherwise.
func (t *Table) UnmarshalJSON(data []byte) error {
	doc, err := manifest.Decode(data)
	if err != nil {
		return err
	}
	if !doc.IsObject() {
		return fmt.Errorf("compromised table must be an object, got %s", doc.Kind())
	}

	*t = *NewTable()
	for _, m := range doc.Members() {
		switch m.Value.Kind() {
		case manifest.Null:
			t.Add(m.Key, AnyVersion())
		case manifest.Array:
			versions := make([]string, 0, len(m.Value.Items()))
			for _, item := range m.Value.Items() {
				v, ok := item.Str()
				if !ok {
					return fmt.Errorf("compromised table: %q lists a non-string version", m.Key)
				}
				versions = append(versions, v)
			}
			t.Add(m.Key, SomeVersions(versions...))
		default:
			return fmt.Errorf("compromised table: %q must be null or an array of versions", m.Key)
		}
	}
	return nil
}
