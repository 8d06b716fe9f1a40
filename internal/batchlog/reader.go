package batchlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Artifact is a decoded batch file. Records holds the valid change records
// in file order; Invalid holds one *model.ValidationError per skipped record.
type Artifact struct {
	Name     string
	Identity string
	Metadata model.BatchMetadata
	Records  []model.ChangeRecord
	Invalid  []error
}

// Read decodes the artifact name in dir. A file that is not a batch
// document yields a *CorruptionError; malformed records are reported in
// Artifact.Invalid and do not fail the read.
func Read(dir, name string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, eris.Wrapf(err, "batchlog: read %s", name)
	}
	return Decode(name, data)
}

type wireBatch struct {
	Metadata *wireMetadata     `json:"batch_metadata"`
	Changes  []json.RawMessage `json:"changes"`
}

type wireMetadata struct {
	ExtractedAt flexTime `json:"extracted_at"`
	ChangeCount int      `json:"change_count"`
	Watermark   flexTime `json:"watermark"`
}

type wireRecord struct {
	ID            *int64    `json:"id"`
	CustomerID    int64     `json:"customer_id"`
	ProductID     int64     `json:"product_id"`
	Quantity      int       `json:"quantity"`
	UnitPrice     flexFloat `json:"unit_price"`
	TotalAmount   flexFloat `json:"total_amount"`
	OrderStatus   string    `json:"order_status"`
	OrderDate     flexTime  `json:"order_date"`
	LastUpdated   flexTime  `json:"last_updated"`
	CreatedAt     flexTime  `json:"created_at"`
	OperationType string    `json:"operation_type"`
	CDCTimestamp  flexTime  `json:"cdc_timestamp"`
	ExtractedAt   flexTime  `json:"extracted_at"`
}

// Decode parses artifact content.
func Decode(name string, data []byte) (*Artifact, error) {
	var wb wireBatch
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wb); err != nil {
		return nil, &CorruptionError{Name: name, Err: err}
	}
	if wb.Metadata == nil {
		return nil, &CorruptionError{Name: name, Err: eris.New("missing batch_metadata")}
	}
	if wb.Changes == nil {
		return nil, &CorruptionError{Name: name, Err: eris.New("missing changes")}
	}

	a := &Artifact{
		Name: name,
		Metadata: model.BatchMetadata{
			ExtractedAt: model.Truncate(wb.Metadata.ExtractedAt.Time),
			ChangeCount: wb.Metadata.ChangeCount,
			Watermark:   model.Truncate(wb.Metadata.Watermark.Time),
		},
	}

	batchID := BatchID(name)
	keys := make([]int64, 0, len(wb.Changes))
	for i, raw := range wb.Changes {
		var wr wireRecord
		if err := json.Unmarshal(raw, &wr); err != nil {
			var key int64
			if wr.ID != nil {
				key = *wr.ID
			}
			a.Invalid = append(a.Invalid, model.NewValidationError(key, "record", "decode #"+strconv.Itoa(i)+": "+err.Error()))
			continue
		}
		if wr.ID == nil {
			a.Invalid = append(a.Invalid, model.NewValidationError(0, "id", "is required"))
			continue
		}
		keys = append(keys, *wr.ID)

		rec := wr.toRecord()
		rec.Batch = batchID
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			a.Invalid = append(a.Invalid, err)
			continue
		}
		a.Records = append(a.Records, rec)
	}

	a.Identity = model.Identity(sortedDistinct(keys))
	return a, nil
}

func (wr wireRecord) toRecord() model.ChangeRecord {
	return model.ChangeRecord{
		NaturalKey: *wr.ID,
		Attributes: model.Attributes{
			CustomerID:  wr.CustomerID,
			ProductID:   wr.ProductID,
			Quantity:    wr.Quantity,
			UnitPrice:   float64(wr.UnitPrice),
			TotalAmount: float64(wr.TotalAmount),
			OrderStatus: wr.OrderStatus,
			OrderDate:   wr.OrderDate.Time,
		},
		LastUpdated:      wr.LastUpdated.Time,
		CreatedAt:        wr.CreatedAt.Time,
		Operation:        model.Operation(strings.ToUpper(wr.OperationType)),
		CaptureTimestamp: wr.CDCTimestamp.Time,
		ExtractedAt:      wr.ExtractedAt.Time,
	}
}

func sortedDistinct(keys []int64) []int64 {
	b := model.Batch{Changes: make([]model.ChangeRecord, len(keys))}
	for i, k := range keys {
		b.Changes[i].NaturalKey = k
	}
	return b.Keys()
}

// flexTime accepts RFC 3339 timestamps and naive timestamps, which are read
// as UTC.
type flexTime struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		f.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "timestamp must be a string")
	}
	if s == "" {
		f.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		f.Time = t
		return nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			f.Time = t
			return nil
		}
	}
	return eris.Errorf("unrecognised timestamp %q", s)
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = 0
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		v, err := n.Float64()
		if err != nil {
			return eris.Wrapf(err, "invalid number %s", n)
		}
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Errorf("invalid amount %s", string(b))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return eris.Wrapf(err, "invalid amount %q", s)
	}
	*f = flexFloat(v)
	return nil
}
