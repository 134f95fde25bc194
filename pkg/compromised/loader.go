package compromised

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/exploopio/npm-audit/pkg/errors"
)

// Load reads a compromised list from path.
// A missing or unreadable file is a KindConfig error.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(errors.KindConfig, "compromised.Load", fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	table, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "compromised.Load")
	}
	return table, nil
}

// Parse reads one entry per line: "name" flags all versions, "name@version"
// flags one version. The split happens at the right-most '@', so scoped
// names such as "@ctrl/tinycolor@4.1.1" work; a lone leading '@' belongs to
// the name. Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader) (*Table, error) {
	table := NewTable()
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, version, pinned, err := ParseLine(line)
		if err != nil {
			return nil, errors.E(errors.KindParse, fmt.Sprintf("line %d", lineNo), err)
		}
		if pinned {
			table.Add(name, SomeVersions(version))
		} else {
			table.Add(name, AnyVersion())
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.E(errors.KindConfig, "read compromised list", err)
	}
	return table, nil
}

// ParseLine splits a single trimmed entry. pinned is false for a bare name.
// An entry ending in '@' has no version and is rejected.
func ParseLine(line string) (name, version string, pinned bool, err error) {
	at := strings.LastIndex(line, "@")
	if at <= 0 {
		return line, "", false, nil
	}
	name, version = line[:at], line[at+1:]
	if version == "" {
		return "", "", false, fmt.Errorf("entry %q has an empty version after '@'", line)
	}
	return name, version, true, nil
}
