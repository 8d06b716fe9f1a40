package batchlog

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Writer persists batches into a directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer for dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "batchlog: create dir %s", dir)
	}
	return &Writer{dir: dir}, nil
}

// Write stores batch as a new artifact and returns its name. The file is
// written under a temporary name, synced and renamed, so a partial artifact
// is never discoverable.
func (w *Writer) Write(batch *model.Batch) (string, error) {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "batchlog: marshal batch")
	}

	name, err := w.freeName(batch)
	if err != nil {
		return "", err
	}

	if err := renameio.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		return "", eris.Wrapf(err, "batchlog: write %s", name)
	}
	return name, nil
}

func (w *Writer) freeName(batch *model.Batch) (string, error) {
	for suffix := 0; suffix <= maxSuffix; suffix++ {
		name := ArtifactName(batch.Metadata.ExtractedAt, suffix)
		_, err := os.Stat(filepath.Join(w.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", eris.Wrapf(err, "batchlog: stat %s", name)
		}
	}
	return "", eris.Errorf("batchlog: no free artifact name for %s", batch.Metadata.ExtractedAt)
}
