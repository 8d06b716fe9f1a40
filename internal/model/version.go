package model

import "time"

// Version is one row of the SCD2 dimension: a single historical state of an
// order. Rows are only ever appended, and an existing row is only ever
// touched to close it.
type Version struct {
	SurrogateKey int64 `json:"surrogate_key"`
	NaturalKey   int64 `json:"order_key"`
	Attributes
	ValidFrom        time.Time  `json:"valid_from"`
	ValidTo          *time.Time `json:"valid_to"`
	IsCurrent        bool       `json:"is_current"`
	SourceOperation  Operation  `json:"cdc_operation"`
	CaptureTimestamp time.Time  `json:"cdc_timestamp"`
	BatchID          string     `json:"batch_id"`
}

// DimensionStats summarizes the dimension table.
type DimensionStats struct {
	TotalRecords      int64      `json:"total_records"`
	CurrentRecords    int64      `json:"current_records"`
	HistoricalRecords int64      `json:"historical_records"`
	UniqueKeys        int64      `json:"unique_keys"`
	EarliestValidFrom *time.Time `json:"earliest_valid_from,omitempty"`
	LatestValidFrom   *time.Time `json:"latest_valid_from,omitempty"`
}
