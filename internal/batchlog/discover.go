package batchlog

import (
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/rotisserie/eris"
)

// Discover lists artifact names in dir in capture order. A missing
// directory has no artifacts.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "batchlog: read dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsArtifact(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
