package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
	"github.com/sells-group/cdc-cli/internal/store"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type listerFunc func(ctx context.Context, f store.VersionFilter) ([]model.Version, error)

func (fn listerFunc) ListVersions(ctx context.Context, f store.VersionFilter) ([]model.Version, error) {
	return fn(ctx, f)
}

func lineage() []model.Version {
	t1 := t0.Add(time.Minute)
	return []model.Version{
		{
			SurrogateKey: 1, NaturalKey: 7,
			Attributes: model.Attributes{Quantity: 3, UnitPrice: 2, TotalAmount: 6, OrderStatus: "shipped", OrderDate: t0},
			ValidFrom:  t0, ValidTo: &t1, SourceOperation: model.OpInsert, CaptureTimestamp: t0, BatchID: "changes_a",
		},
		{
			SurrogateKey: 2, NaturalKey: 7,
			Attributes: model.Attributes{Quantity: 4, UnitPrice: 2, TotalAmount: 8, OrderStatus: "delivered", OrderDate: t0},
			ValidFrom:  t1, IsCurrent: true, SourceOperation: model.OpUpdate, CaptureTimestamp: t1, BatchID: "changes_b",
		},
	}
}

func TestVerify_Clean(t *testing.T) {
	r, err := Verify(context.Background(), listerFunc(func(_ context.Context, f store.VersionFilter) ([]model.Version, error) {
		assert.Zero(t, f.Limit)
		return lineage(), nil
	}))
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Equal(t, 2, r.Versions)
	assert.Equal(t, 1, r.Keys)
	assert.Equal(t, 1, r.Current)

	var buf bytes.Buffer
	WriteIntegrity(&buf, r)
	assert.Contains(t, buf.String(), "Violations:  0")
}

func TestVerify_ReportsViolations(t *testing.T) {
	vs := lineage()
	vs[0].IsCurrent = true
	vs[0].ValidTo = nil

	r, err := Verify(context.Background(), listerFunc(func(context.Context, store.VersionFilter) ([]model.Version, error) {
		return vs, nil
	}))
	require.NoError(t, err)
	require.False(t, r.OK())

	rules := map[string]bool{}
	for _, v := range r.Violations {
		rules[v.Rule] = true
	}
	assert.True(t, rules[scd2.RuleMultipleCurrent])

	var buf bytes.Buffer
	WriteIntegrity(&buf, r)
	assert.Contains(t, buf.String(), scd2.RuleMultipleCurrent)
}

func TestVerify_ListError(t *testing.T) {
	_, err := Verify(context.Background(), listerFunc(func(context.Context, store.VersionFilter) ([]model.Version, error) {
		return nil, errors.New("db down")
	}))
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "json", "yaml", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteLineage_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLineage(&buf, NewLineage(7, lineage()), FormatTable))
	out := buf.String()
	assert.Contains(t, out, "VALID_FROM")
	assert.Contains(t, out, "delivered")
	assert.Contains(t, out, "2024-06-01T09:01:00Z")
}

func TestWriteLineage_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLineage(&buf, NewLineage(9, nil), FormatTable))
	assert.Equal(t, "No versions for order 9.\n", buf.String())
}

func TestWriteLineage_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLineage(&buf, NewLineage(7, lineage()), FormatJSON))

	var got Lineage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, int64(7), got.OrderKey)
	require.Len(t, got.Versions, 2)
	assert.Nil(t, got.Versions[1].ValidTo)
	assert.True(t, got.Versions[1].Current)
}

func TestWriteLineage_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLineage(&buf, NewLineage(7, lineage()), FormatYAML))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 7, got["order_key"])
	versions, ok := got["versions"].([]any)
	require.True(t, ok)
	assert.Len(t, versions, 2)
	assert.Contains(t, buf.String(), "order_status: shipped")
}

func TestWriteRuns(t *testing.T) {
	end := t0.Add(1500 * time.Millisecond)
	var buf bytes.Buffer
	WriteRuns(&buf, []model.PipelineRun{{
		RunID: "0123456789abcdef", Pipeline: model.PipelineLoader, Status: model.RunStatusCompleted,
		StartTime: t0, EndTime: &end, Processed: 10, Failed: 1,
	}})
	out := buf.String()
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "scd2_loader")
	assert.Contains(t, out, "1.5s")
}

func TestWriteRunStats(t *testing.T) {
	var buf bytes.Buffer
	WriteRunStats(&buf, model.PipelineExtractor, &model.RunStats{TotalRuns: 3, SuccessfulRuns: 2, FailedRuns: 1, AvgDurationSecs: 0.5})
	assert.Contains(t, buf.String(), "Avg duration:")
	assert.Contains(t, buf.String(), "cdc_extractor")
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dim.xlsx")
	stats := &model.DimensionStats{TotalRecords: 2, CurrentRecords: 1, HistoricalRecords: 1, UniqueKeys: 1}
	require.NoError(t, ExportXLSX(path, lineage(), stats))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetVersions]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "surrogate_key", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "delivered", sheet.Rows[2].Cells[7].String())
	assert.Equal(t, "", sheet.Rows[2].Cells[10].String())

	summary, ok := f.Sheet[SheetSummary]
	require.True(t, ok)
	assert.Equal(t, "unique_keys", summary.Rows[3].Cells[0].String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, lineage(), nil))
	assert.Greater(t, buf.Len(), 0)
}
