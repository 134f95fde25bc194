package scan

import (
	"context"

	"github.com/exploopio/npm-audit/pkg/compromised"
	"github.com/exploopio/npm-audit/pkg/manifest"
)

// ScanLockfile walks lock and returns every node flagged by table.
//
// The traversal is chosen from the top-level keys, in this order:
//   - "packages": breadth-first over the root "dependencies" resolution
//     table following "requires" edges; when that table is missing
//     (lockfileVersion 3) the "packages" path table is walked instead
//   - "dependencies": depth-first over the nested tree
//   - otherwise: the unstructured fallback walk
func ScanLockfile(ctx context.Context, lock *manifest.Value, table *compromised.Table, opts *Options) (*LockfileResult, error) {
	o := opts.withDefaults()

	if lock == nil {
		return &LockfileResult{Strategy: StrategyNone}, nil
	}

	var w walker
	switch {
	case lock.Has("packages"):
		if root := lock.ObjectField("dependencies"); len(root.Members()) > 0 {
			w = &resolutionWalker{root: root}
		} else {
			w = &packagePathWalker{packages: lock.ObjectField("packages")}
		}
	case lock.Has("dependencies"):
		w = &nestedWalker{root: lock.ObjectField("dependencies")}
	default:
		w = &unstructuredWalker{doc: lock}
	}

	st := &state{ctx: ctx, table: table, opts: o}
	res := &LockfileResult{Strategy: w.strategy()}

	o.Logger.Debug("lockfile traversal: strategy=%s", res.Strategy)
	if err := w.walk(st); err != nil {
		return nil, err
	}

	res.Matches = st.matches
	res.Visited = st.visited
	res.Truncated = st.truncated
	if st.truncated {
		o.Logger.Warn("lockfile traversal truncated after %d nodes (max depth %d, max visits %d)",
			st.visited, o.MaxDepth, o.MaxVisits)
	}
	return res, nil
}

type walker interface {
	strategy() Strategy
	walk(st *state) error
}

// state is shared by every walker for one traversal.
type state struct {
	ctx       context.Context
	table     *compromised.Table
	opts      Options
	matches   []Match
	visited   int
	truncated bool
}

// visit counts one node and reports whether the walk may continue.
func (s *state) visit() (bool, error) {
	if s.visited >= s.opts.MaxVisits {
		s.truncated = true
		return false, nil
	}
	s.visited++
	if s.visited%ctxCheckInterval == 0 && s.ctx != nil {
		if err := s.ctx.Err(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// check records a match when name at version is flagged.
func (s *state) check(name string, version *string, path []string) {
	if s.table.Matches(name, version) {
		s.matches = append(s.matches, Match{
			Package: name,
			Version: version,
			Path:    path,
		})
	}
}

// checkChain is check for walkers that keep their paths as hop chains. The
// path is only materialized for a match.
func (s *state) checkChain(name string, version *string, at *hop) {
	if s.table.Matches(name, version) {
		s.matches = append(s.matches, Match{
			Package: name,
			Version: version,
			Path:    at.path(),
		})
	}
}

// admit reports whether one more node may be queued while pending nodes
// wait. A node that could never be visited within MaxVisits is not queued,
// so queue memory stays within the visit budget.
func (s *state) admit(pending int) bool {
	if s.visited+pending >= s.opts.MaxVisits {
		s.truncated = true
		return false
	}
	return true
}

// exhausted reports that the queue already fills the visit budget and a
// child was already turned away, so further children need not be resolved.
func (s *state) exhausted(pending int) bool {
	return s.truncated && s.visited+pending >= s.opts.MaxVisits
}

// deeper reports whether a child path of length n is allowed.
func (s *state) deeper(n int) bool {
	if n > s.opts.MaxDepth {
		s.truncated = true
		return false
	}
	return true
}

// hop is one step of a dependency chain. Queued nodes share the prefix of
// their chain through parent instead of each holding a copied path.
type hop struct {
	key    string // name as written by the dependent
	id     string // identity checked by the cycle guard
	parent *hop
	depth  int
}

func newHop(key, id string) *hop {
	return &hop{key: key, id: id, depth: 1}
}

func (h *hop) push(key, id string) *hop {
	return &hop{key: key, id: id, parent: h, depth: h.len() + 1}
}

func (h *hop) len() int {
	if h == nil {
		return 0
	}
	return h.depth
}

// onChain reports whether id already occurs from the root to h.
func (h *hop) onChain(id string) bool {
	for ; h != nil; h = h.parent {
		if h.id == id {
			return true
		}
	}
	return false
}

func (h *hop) path() []string {
	out := make([]string, h.len())
	for i := len(out) - 1; h != nil; i, h = i-1, h.parent {
		out[i] = h.key
	}
	return out
}
