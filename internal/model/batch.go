package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// BatchMetadata describes one poll of the source.
type BatchMetadata struct {
	ExtractedAt time.Time `json:"extracted_at"`
	ChangeCount int       `json:"change_count"`
	Watermark   time.Time `json:"watermark"`
}

// Batch is an ordered set of change records captured by a single poll.
type Batch struct {
	Metadata BatchMetadata  `json:"batch_metadata"`
	Changes  []ChangeRecord `json:"changes"`
}

// NewBatch wraps changes detected at extractedAt using the given watermark.
func NewBatch(changes []ChangeRecord, extractedAt, watermark time.Time) *Batch {
	return &Batch{
		Metadata: BatchMetadata{
			ExtractedAt: Truncate(extractedAt),
			ChangeCount: len(changes),
			Watermark:   Truncate(watermark),
		},
		Changes: changes,
	}
}

// Keys returns the distinct natural keys of the batch in ascending order.
func (b *Batch) Keys() []int64 {
	seen := make(map[int64]struct{}, len(b.Changes))
	keys := make([]int64, 0, len(b.Changes))
	for _, c := range b.Changes {
		if _, ok := seen[c.NaturalKey]; ok {
			continue
		}
		seen[c.NaturalKey] = struct{}{}
		keys = append(keys, c.NaturalKey)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Identity is the content hash of the batch used for ledger dedup.
func (b *Batch) Identity() string {
	return Identity(b.Keys())
}

// MaxSourceModified returns the latest source modification time in the
// batch, or the zero time for an empty batch.
func (b *Batch) MaxSourceModified() time.Time {
	var max time.Time
	for _, c := range b.Changes {
		if m := c.SourceModified(); m.After(max) {
			max = m
		}
	}
	return max
}

// Identity hashes a sorted set of natural keys into a hex SHA-256 digest.
func Identity(sortedKeys []int64) string {
	if sortedKeys == nil {
		sortedKeys = []int64{}
	}
	// Marshalling an []int64 cannot fail.
	content, _ := json.Marshal(sortedKeys)
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
