package scan

import (
	"strings"

	"github.com/exploopio/npm-audit/pkg/manifest"
)

// resolutionWalker does a breadth-first walk of a name → {version, requires}
// table. Every root entry is a direct dependency; children are looked up in
// the same table by name. A name already on the current chain is not
// enqueued again, so cyclic tables terminate while a package reachable
// through several parents is still reported once per chain. Densely linked
// tables are bounded by the visit budget, which also caps the queue.
type resolutionWalker struct {
	root *manifest.Value
}

type queued struct {
	meta *manifest.Value
	at   *hop
}

func (w *resolutionWalker) strategy() Strategy { return StrategyResolutionTable }

func (w *resolutionWalker) walk(st *state) error {
	var queue []queued
	for _, m := range w.root.Members() {
		if !m.Value.IsObject() {
			continue
		}
		if !st.admit(len(queue)) {
			break
		}
		queue = append(queue, queued{meta: m.Value, at: newHop(m.Key, m.Key)})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue[0] = queued{}
		queue = queue[1:]

		ok, err := st.visit()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		st.checkChain(item.at.key, item.meta.StringField("version"), item.at)

		for _, req := range item.meta.ObjectField("requires").Members() {
			if st.exhausted(len(queue)) {
				break
			}
			child := w.root.ObjectField(req.Key)
			if child == nil || item.at.onChain(req.Key) {
				continue
			}
			if !st.deeper(item.at.len() + 1) {
				continue
			}
			if !st.admit(len(queue)) {
				break
			}
			queue = append(queue, queued{meta: child, at: item.at.push(req.Key, req.Key)})
		}
	}
	return nil
}

// packagePathWalker handles lockfiles that only carry the "packages" table
// keyed by install location ("", "node_modules/a",
// "node_modules/a/node_modules/b"). Edges come from each entry's declared
// dependencies, resolved the way node does: the nearest node_modules
// directory walking up from the dependent's location.
//
// Paths hold dependency keys, so for an aliased install ("b": "npm:a@1")
// the path ends in the alias while Package is the installed "name".
type packagePathWalker struct {
	packages *manifest.Value
}

type located struct {
	location string
	name     string
	meta     *manifest.Value
	at       *hop
}

// edgeSections are followed for installed packages; the project root also
// follows devDependencies.
var edgeSections = []string{"dependencies", "optionalDependencies", "peerDependencies"}

func (w *packagePathWalker) strategy() Strategy { return StrategyPackagePathTable }

func (w *packagePathWalker) walk(st *state) error {
	root := w.packages.ObjectField("")
	if root == nil {
		return nil
	}

	var queue []located
	queue = w.children(st, queue, located{location: "", meta: root}, DependencySections)

	for len(queue) > 0 {
		item := queue[0]
		queue[0] = located{}
		queue = queue[1:]

		ok, err := st.visit()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		st.checkChain(item.name, item.meta.StringField("version"), item.at)
		queue = w.children(st, queue, item, edgeSections)
	}
	return nil
}

// children enqueues the resolved dependencies of parent. A name declared in
// several sections is followed once.
func (w *packagePathWalker) children(st *state, queue []located, parent located, sections []string) []located {
	for i, section := range sections {
		for _, dep := range parent.meta.ObjectField(section).Members() {
			if st.exhausted(len(queue)) {
				return queue
			}
			if declaredIn(parent.meta, sections[:i], dep.Key) {
				continue
			}

			loc, ok := w.resolve(parent.location, dep.Key)
			if !ok || parent.at.onChain(loc) {
				continue
			}
			if !st.deeper(parent.at.len() + 1) {
				continue
			}
			meta := w.follow(w.packages.ObjectField(loc))
			if meta == nil {
				continue
			}
			if !st.admit(len(queue)) {
				return queue
			}
			name := dep.Key
			if installed := meta.StringField("name"); installed != nil {
				name = *installed
			}
			queue = append(queue, located{
				location: loc,
				name:     name,
				meta:     meta,
				at:       parent.at.push(dep.Key, loc),
			})
		}
	}
	return queue
}

func declaredIn(meta *manifest.Value, sections []string, name string) bool {
	for _, section := range sections {
		if meta.ObjectField(section).Has(name) {
			return true
		}
	}
	return false
}

// resolve finds the install location of name as seen from location.
func (w *packagePathWalker) resolve(location, name string) (string, bool) {
	base := location
	for {
		candidate := "node_modules/" + name
		if base != "" {
			candidate = base + "/node_modules/" + name
		}
		if w.packages.Has(candidate) {
			return candidate, true
		}
		if base == "" {
			return "", false
		}
		base = parentLocation(base)
	}
}

// follow resolves workspace links to the linked package entry.
func (w *packagePathWalker) follow(meta *manifest.Value) *manifest.Value {
	if meta == nil {
		return nil
	}
	if link, _ := meta.Get("link"); !link.Truthy() {
		return meta
	}
	target := meta.StringField("resolved")
	if target == nil {
		return meta
	}
	if linked := w.packages.ObjectField(*target); linked != nil {
		return linked
	}
	return meta
}

// parentLocation strips the last node_modules segment:
// "node_modules/a/node_modules/b" → "node_modules/a", "node_modules/a" → "".
func parentLocation(location string) string {
	if i := strings.LastIndex(location, "/node_modules/"); i >= 0 {
		return location[:i]
	}
	return ""
}
