// Package batchlog persists detected change batches as JSON artifacts and
// tracks which artifacts have been applied.
package batchlog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	artifactPrefix = "changes_"
	artifactExt    = ".json"
	nameLayout     = "20060102_150405"
	maxSuffix      = 99
)

var artifactPattern = regexp.MustCompile(`^changes_(\d{8}_\d{6})_(\d{3})(?:_(\d{2}))?\.json$`)

// ArtifactName returns the artifact name for a batch captured at t, with an
// optional collision suffix (0 for none). Names sort lexically in capture
// order, and a suffixed name sorts after its base name.
func ArtifactName(t time.Time, suffix int) string {
	t = t.UTC()
	base := fmt.Sprintf("%s%s_%03d", artifactPrefix, t.Format(nameLayout), t.Nanosecond()/int(time.Millisecond))
	if suffix > 0 {
		base += fmt.Sprintf("_%02d", suffix)
	}
	return base + artifactExt
}

// IsArtifact reports whether name is a batch artifact file name.
func IsArtifact(name string) bool {
	return artifactPattern.MatchString(name)
}

// ArtifactTime returns the capture time encoded in an artifact name.
func ArtifactTime(name string) (time.Time, bool) {
	m := artifactPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(nameLayout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(time.Duration(ms) * time.Millisecond), true
}

// BatchID derives the dimension batch_id from an artifact name.
func BatchID(name string) string {
	return strings.TrimSuffix(name, artifactExt)
}
