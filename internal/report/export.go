package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Sheet names of the dimension export.
const (
	SheetVersions = "dim_orders_history"
	SheetSummary  = "summary"
)

var exportHeader = []string{
	"surrogate_key", "order_key", "customer_id", "product_id", "quantity", "unit_price",
	"total_amount", "order_status", "order_date", "valid_from", "valid_to", "is_current",
	"cdc_operation", "cdc_timestamp", "batch_id",
}

// BuildWorkbook lays out versions and stats as a spreadsheet.
func BuildWorkbook(versions []model.Version, stats *model.DimensionStats) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetVersions)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add versions sheet")
	}
	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}
	for _, v := range versions {
		row := sheet.AddRow()
		row.AddCell().SetInt64(v.SurrogateKey)
		row.AddCell().SetInt64(v.NaturalKey)
		row.AddCell().SetInt64(v.CustomerID)
		row.AddCell().SetInt64(v.ProductID)
		row.AddCell().SetInt(v.Quantity)
		row.AddCell().SetFloat(v.UnitPrice)
		row.AddCell().SetFloat(v.TotalAmount)
		row.AddCell().SetString(v.OrderStatus)
		row.AddCell().SetString(v.OrderDate.Format(time.RFC3339))
		row.AddCell().SetString(v.ValidFrom.Format(time.RFC3339Nano))
		validTo := row.AddCell()
		if v.ValidTo != nil {
			validTo.SetString(v.ValidTo.Format(time.RFC3339Nano))
		}
		row.AddCell().SetBool(v.IsCurrent)
		row.AddCell().SetString(string(v.SourceOperation))
		row.AddCell().SetString(v.CaptureTimestamp.Format(time.RFC3339Nano))
		row.AddCell().SetString(v.BatchID)
	}

	if stats == nil {
		return f, nil
	}
	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStat := func(name string, value int64) {
		row := summary.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetInt64(value)
	}
	addStat("total_records", stats.TotalRecords)
	addStat("current_records", stats.CurrentRecords)
	addStat("historical_records", stats.HistoricalRecords)
	addStat("unique_keys", stats.UniqueKeys)
	return f, nil
}

// ExportXLSX writes the workbook to path.
func ExportXLSX(path string, versions []model.Version, stats *model.DimensionStats) error {
	f, err := BuildWorkbook(versions, stats)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

// WriteXLSX streams the workbook to w.
func WriteXLSX(w io.Writer, versions []model.Version, stats *model.DimensionStats) error {
	f, err := BuildWorkbook(versions, stats)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write")
}
