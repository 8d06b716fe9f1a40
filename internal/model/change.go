package model

import (
	"math"
	"time"
)

// Operation is the kind of mutation a change record describes.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// Attributes is the tracked snapshot of an order. Only these fields take part
// in change comparison; temporal and capture metadata never do.
type Attributes struct {
	CustomerID  int64     `json:"customer_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	TotalAmount float64   `json:"total_amount"`
	OrderStatus string    `json:"order_status"`
	OrderDate   time.Time `json:"order_date"`
}

// Equal compares two snapshots. Money is compared at cent precision and the
// order date at microsecond precision.
func (a Attributes) Equal(b Attributes) bool {
	return a.CustomerID == b.CustomerID &&
		a.ProductID == b.ProductID &&
		a.Quantity == b.Quantity &&
		cents(a.UnitPrice) == cents(b.UnitPrice) &&
		cents(a.TotalAmount) == cents(b.TotalAmount) &&
		a.OrderStatus == b.OrderStatus &&
		Truncate(a.OrderDate).Equal(Truncate(b.OrderDate))
}

func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// ChangeRecord is one captured mutation of a source order.
type ChangeRecord struct {
	NaturalKey int64 `json:"id"`
	Attributes
	LastUpdated      time.Time `json:"last_updated"`
	CreatedAt        time.Time `json:"created_at"`
	Operation        Operation `json:"operation_type"`
	CaptureTimestamp time.Time `json:"cdc_timestamp"`
	ExtractedAt      time.Time `json:"extracted_at"`

	// Batch is the artifact the record was read from. It is set by the
	// loader and never serialized.
	Batch string `json:"-"`
}

// SourceModified is the latest source-side timestamp of the record. The
// watermark advances to the maximum of this value across a batch.
func (c ChangeRecord) SourceModified() time.Time {
	if c.CreatedAt.After(c.LastUpdated) {
		return c.CreatedAt
	}
	return c.LastUpdated
}

// Normalize converts every timestamp to UTC at microsecond precision, which
// is what TIMESTAMPTZ stores.
func (c *ChangeRecord) Normalize() {
	c.OrderDate = Truncate(c.OrderDate)
	c.LastUpdated = Truncate(c.LastUpdated)
	c.CreatedAt = Truncate(c.CreatedAt)
	c.CaptureTimestamp = Truncate(c.CaptureTimestamp)
	c.ExtractedAt = Truncate(c.ExtractedAt)
}

// Validate checks the fields the loader depends on. The first problem found
// is returned as a *ValidationError.
func (c ChangeRecord) Validate() error {
	switch {
	case c.NaturalKey <= 0:
		return NewValidationError(c.NaturalKey, "id", "must be positive")
	case !c.Operation.Valid():
		return NewValidationError(c.NaturalKey, "operation_type", "unknown operation "+string(c.Operation))
	case c.CaptureTimestamp.IsZero():
		return NewValidationError(c.NaturalKey, "cdc_timestamp", "is required")
	}

	// Deletes only need identity and timing.
	if c.Operation == OpDelete {
		return nil
	}

	switch {
	case c.OrderStatus == "":
		return NewValidationError(c.NaturalKey, "order_status", "is required")
	case c.Quantity < 0:
		return NewValidationError(c.NaturalKey, "quantity", "must not be negative")
	case c.UnitPrice < 0:
		return NewValidationError(c.NaturalKey, "unit_price", "must not be negative")
	case c.OrderDate.IsZero():
		return NewValidationError(c.NaturalKey, "order_date", "is required")
	case c.LastUpdated.IsZero():
		return NewValidationError(c.NaturalKey, "last_updated", "is required")
	}
	return nil
}

// Truncate returns t in UTC at microsecond precision.
func Truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}
