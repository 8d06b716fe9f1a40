package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", eris.Errorf("report: unknown output format %q (want table, json or yaml)", s)
	}
}

// LineageEntry is one version of a key as rendered in reports.
type LineageEntry struct {
	SurrogateKey int64      `json:"surrogate_key" yaml:"surrogate_key"`
	Operation    string     `json:"cdc_operation" yaml:"cdc_operation"`
	Status       string     `json:"order_status" yaml:"order_status"`
	Quantity     int        `json:"quantity" yaml:"quantity"`
	UnitPrice    float64    `json:"unit_price" yaml:"unit_price"`
	TotalAmount  float64    `json:"total_amount" yaml:"total_amount"`
	ValidFrom    time.Time  `json:"valid_from" yaml:"valid_from"`
	ValidTo      *time.Time `json:"valid_to" yaml:"valid_to"`
	Current      bool       `json:"is_current" yaml:"is_current"`
	BatchID      string     `json:"batch_id" yaml:"batch_id"`
}

// Lineage is the full history of one natural key.
type Lineage struct {
	OrderKey int64          `json:"order_key" yaml:"order_key"`
	Versions []LineageEntry `json:"versions" yaml:"versions"`
}

// NewLineage builds the lineage of key from its versions.
func NewLineage(key int64, versions []model.Version) Lineage {
	l := Lineage{OrderKey: key, Versions: make([]LineageEntry, 0, len(versions))}
	for _, v := range versions {
		l.Versions = append(l.Versions, LineageEntry{
			SurrogateKey: v.SurrogateKey,
			Operation:    string(v.SourceOperation),
			Status:       v.OrderStatus,
			Quantity:     v.Quantity,
			UnitPrice:    v.UnitPrice,
			TotalAmount:  v.TotalAmount,
			ValidFrom:    v.ValidFrom,
			ValidTo:      v.ValidTo,
			Current:      v.IsCurrent,
			BatchID:      v.BatchID,
		})
	}
	return l
}

// WriteLineage renders l in format f.
func WriteLineage(out io.Writer, l Lineage, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(l), "report: encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return eris.Wrap(enc.Close(), "report: encode yaml")
	}

	if len(l.Versions) == 0 {
		_, err := fmt.Fprintf(out, "No versions for order %d.\n", l.OrderKey)
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SK\tOP\tSTATUS\tQTY\tTOTAL\tVALID_FROM\tVALID_TO\tCURRENT\tBATCH")
	for _, v := range l.Versions {
		validTo := "-"
		if v.ValidTo != nil {
			validTo = v.ValidTo.Format(time.RFC3339)
		}
		current := ""
		if v.Current {
			current = "*"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.2f\t%s\t%s\t%s\t%s\n",
			v.SurrogateKey, v.Operation, v.Status, v.Quantity, v.TotalAmount,
			v.ValidFrom.Format(time.RFC3339), validTo, current, v.BatchID)
	}
	return w.Flush()
}
