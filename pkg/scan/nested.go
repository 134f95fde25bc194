package scan

import "github.com/exploopio/npm-audit/pkg/manifest"

// nestedWalker walks the lockfileVersion 1 tree, where each entry carries
// its own "dependencies" object of the same shape.
type nestedWalker struct {
	root *manifest.Value
}

func (w *nestedWalker) strategy() Strategy { return StrategyNestedTree }

func (w *nestedWalker) walk(st *state) error {
	_, err := w.level(st, w.root, nil)
	return err
}

// level visits every entry of node. It returns false once the visit budget
// is exhausted.
func (w *nestedWalker) level(st *state, node *manifest.Value, parent []string) (bool, error) {
	for _, m := range node.Members() {
		if !m.Value.IsObject() {
			continue
		}
		ok, err := st.visit()
		if err != nil || !ok {
			return false, err
		}

		path := extend(parent, m.Key)
		st.check(m.Key, m.Value.StringField("version"), path)

		children := m.Value.ObjectField("dependencies")
		if len(children.Members()) == 0 {
			continue
		}
		if !st.deeper(len(path) + 1) {
			continue
		}
		if ok, err := w.level(st, children, path); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
