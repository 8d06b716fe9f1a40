package scd2

import (
	"sort"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Coalesce reduces records to one effective change per natural key: the
// record with the latest capture timestamp, ties going to the one detected
// later. Earlier records for the key are dropped. The result is ordered by
// the position of each winner in the input.
func Coalesce(records []model.ChangeRecord) []model.ChangeRecord {
	winner := make(map[int64]int, len(records))
	for i, r := range records {
		j, ok := winner[r.NaturalKey]
		if !ok || !r.CaptureTimestamp.Before(records[j].CaptureTimestamp) {
			winner[r.NaturalKey] = i
		}
	}

	idx := make([]int, 0, len(winner))
	for _, i := range winner {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]model.ChangeRecord, len(idx))
	for n, i := range idx {
		out[n] = records[i]
	}
	return out
}
