package scan

import (
	"strconv"

	"github.com/exploopio/npm-audit/pkg/manifest"
)

// unstructuredWalker searches a document of unknown shape for objects that
// carry a "version" key. The last element of the path to such an object is
// taken as the package name, which overmatches on purpose: any key that
// happens to equal a flagged name is reported.
type unstructuredWalker struct {
	doc *manifest.Value
}

func (w *unstructuredWalker) strategy() Strategy { return StrategyUnstructured }

func (w *unstructuredWalker) walk(st *state) error {
	_, err := w.node(st, w.doc, nil)
	return err
}

func (w *unstructuredWalker) node(st *state, v *manifest.Value, path []string) (bool, error) {
	switch v.Kind() {
	case manifest.Object:
		ok, err := st.visit()
		if err != nil || !ok {
			return false, err
		}
		if len(path) > 0 && v.Has("version") {
			st.check(path[len(path)-1], v.StringField("version"), path)
		}
		for _, m := range v.Members() {
			if ok, err := w.child(st, m.Value, path, m.Key); err != nil || !ok {
				return false, err
			}
		}
	case manifest.Array:
		for i, item := range v.Items() {
			if ok, err := w.child(st, item, path, strconv.Itoa(i)); err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func (w *unstructuredWalker) child(st *state, v *manifest.Value, path []string, key string) (bool, error) {
	k := v.Kind()
	if k != manifest.Object && k != manifest.Array {
		return true, nil
	}
	if !st.deeper(len(path) + 1) {
		return true, nil
	}
	return w.node(st, v, extend(path, key))
}
