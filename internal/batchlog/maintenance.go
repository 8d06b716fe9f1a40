package batchlog

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Quarantine moves a corrupt artifact out of dir into quarantineDir so
// discovery no longer sees it. The file is kept for inspection.
func Quarantine(dir, quarantineDir, name string) error {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return eris.Wrapf(err, "batchlog: create quarantine dir %s", quarantineDir)
	}
	if err := os.Rename(filepath.Join(dir, name), filepath.Join(quarantineDir, name)); err != nil {
		return eris.Wrapf(err, "batchlog: quarantine %s", name)
	}
	return nil
}

// Prune deletes artifacts that the ledger records as applied and whose
// capture time is before cutoff, then drops them from the ledger.
// Unapplied artifacts are never removed.
func Prune(dir string, ledger *Ledger, cutoff time.Time) ([]string, error) {
	names, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		captured, ok := ArtifactTime(name)
		if !ok || !captured.Before(cutoff) || !ledger.Recorded(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			zap.L().Warn("batchlog: prune failed", zap.String("artifact", name), zap.Error(err))
			continue
		}
		removed = append(removed, name)
	}

	if err := ledger.Forget(removed...); err != nil {
		return removed, eris.Wrap(err, "batchlog: persist ledger after prune")
	}
	return removed, nil
}
