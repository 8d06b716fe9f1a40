package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validChange() ChangeRecord {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return ChangeRecord{
		NaturalKey: 42,
		Attributes: Attributes{
			CustomerID:  7,
			ProductID:   9,
			Quantity:    2,
			UnitPrice:   10.5,
			TotalAmount: 21,
			OrderStatus: "PENDING",
			OrderDate:   ts,
		},
		LastUpdated:      ts,
		CreatedAt:        ts,
		Operation:        OpInsert,
		CaptureTimestamp: ts.Add(time.Second),
		ExtractedAt:      ts.Add(time.Second),
	}
}

func TestOperationValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op   Operation
		want bool
	}{
		{OpInsert, true},
		{OpUpdate, true},
		{OpDelete, true},
		{"UPSERT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.op.Valid())
		})
	}
}

func TestAttributesEqual(t *testing.T) {
	t.Parallel()

	base := validChange().Attributes

	same := base
	same.UnitPrice = 10.501
	assert.True(t, base.Equal(same), "sub-cent difference is ignored")

	diffStatus := base
	diffStatus.OrderStatus = "SHIPPED"
	assert.False(t, base.Equal(diffStatus))

	diffPrice := base
	diffPrice.UnitPrice = 10.51
	assert.False(t, base.Equal(diffPrice))

	diffDate := base
	diffDate.OrderDate = base.OrderDate.Add(time.Second)
	assert.False(t, base.Equal(diffDate))

	nanos := base
	nanos.OrderDate = base.OrderDate.Add(300 * time.Nanosecond)
	assert.True(t, base.Equal(nanos), "sub-microsecond difference is ignored")
}

func TestChangeRecordValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*ChangeRecord)
		field  string
	}{
		{"valid", func(*ChangeRecord) {}, ""},
		{"zero key", func(c *ChangeRecord) { c.NaturalKey = 0 }, "id"},
		{"bad operation", func(c *ChangeRecord) { c.Operation = "MERGE" }, "operation_type"},
		{"missing capture", func(c *ChangeRecord) { c.CaptureTimestamp = time.Time{} }, "cdc_timestamp"},
		{"missing status", func(c *ChangeRecord) { c.OrderStatus = "" }, "order_status"},
		{"negative quantity", func(c *ChangeRecord) { c.Quantity = -1 }, "quantity"},
		{"negative price", func(c *ChangeRecord) { c.UnitPrice = -1 }, "unit_price"},
		{"missing order date", func(c *ChangeRecord) { c.OrderDate = time.Time{} }, "order_date"},
		{"delete without attributes", func(c *ChangeRecord) {
			c.Operation = OpDelete
			c.Attributes = Attributes{}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validChange()
			tt.mutate(&c)
			err := c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, c.NaturalKey, verr.NaturalKey)
		})
	}
}

func TestChangeRecordNormalize(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)
	c := validChange()
	c.CaptureTimestamp = time.Date(2024, 3, 1, 7, 0, 0, 123456789, loc)
	c.Normalize()

	assert.Equal(t, time.UTC, c.CaptureTimestamp.Location())
	assert.Equal(t, 123456000, c.CaptureTimestamp.Nanosecond())
	assert.Equal(t, 12, c.CaptureTimestamp.Hour())
}

func TestSourceModified(t *testing.T) {
	t.Parallel()

	c := validChange()
	assert.Equal(t, c.LastUpdated, c.SourceModified())

	c.CreatedAt = c.LastUpdated.Add(time.Minute)
	assert.Equal(t, c.CreatedAt, c.SourceModified())
}

func TestChangeRecordJSONFieldNames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(validChange())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{
		"id", "customer_id", "product_id", "quantity", "unit_price", "total_amount",
		"order_status", "order_date", "last_updated", "created_at",
		"operation_type", "cdc_timestamp", "extracted_at",
	} {
		assert.Contains(t, m, k)
	}
	assert.NotContains(t, m, "Batch")
}
