package manifest

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/exploopio/npm-audit/pkg/errors"
)

// Fixed file names read from the project directory.
const (
	PackageJSON     = "package.json"
	PackageLockJSON = "package-lock.json"
)

// Load reads and decodes the JSON document at path.
// A missing file is reported as present=false with a nil error.
func Load(path string) (doc *Value, present bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) || stderrors.Is(err, syscall.ENOTDIR) {
			return nil, false, nil
		}
		return nil, false, errors.E(errors.KindIO, "manifest.Load", fmt.Sprintf("read %s", path), err)
	}

	doc, err = Decode(data)
	if err != nil {
		return nil, false, errors.E(errors.KindParse, "manifest.Load", fmt.Sprintf("%s is not valid JSON", path), err)
	}
	return doc, true, nil
}

// Project holds the two optional documents of an npm project.
type Project struct {
	Dir         string
	Package     *Value
	Lock        *Value
	HasPackage  bool
	HasLockfile bool
}

// LoadProject reads package.json and package-lock.json from dir.
func LoadProject(dir string) (*Project, error) {
	p := &Project{Dir: dir}

	var err error
	p.Package, p.HasPackage, err = Load(filepath.Join(dir, PackageJSON))
	if err != nil {
		return nil, err
	}
	p.Lock, p.HasLockfile, err = Load(filepath.Join(dir, PackageLockJSON))
	if err != nil {
		return nil, err
	}
	return p, nil
}
