// Package report renders dimension audits, key lineage, run summaries and
// spreadsheet exports.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
	"github.com/sells-group/cdc-cli/internal/store"
)

// VersionLister reads dimension rows.
type VersionLister interface {
	ListVersions(ctx context.Context, filter store.VersionFilter) ([]model.Version, error)
}

// Integrity is the result of auditing the whole dimension.
type Integrity struct {
	Versions   int              `json:"versions"`
	Keys       int              `json:"keys"`
	Current    int              `json:"current"`
	Violations []scd2.Violation `json:"violations"`
}

// OK reports whether no invariant is broken.
func (r *Integrity) OK() bool {
	return len(r.Violations) == 0
}

// Verify loads every version and checks the dimension invariants.
func Verify(ctx context.Context, src VersionLister) (*Integrity, error) {
	versions, err := src.ListVersions(ctx, store.VersionFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "report: load versions")
	}

	keys := make(map[int64]struct{})
	r := &Integrity{Versions: len(versions)}
	for _, v := range versions {
		keys[v.NaturalKey] = struct{}{}
		if v.IsCurrent {
			r.Current++
		}
	}
	r.Keys = len(keys)
	r.Violations = scd2.CheckInvariants(versions)
	return r, nil
}

// WriteIntegrity renders r as text.
func WriteIntegrity(out io.Writer, r *Integrity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Versions:\t%d\n", r.Versions)
	_, _ = fmt.Fprintf(w, "Keys:\t%d\n", r.Keys)
	_, _ = fmt.Fprintf(w, "Current:\t%d\n", r.Current)
	_, _ = fmt.Fprintf(w, "Violations:\t%d\n", len(r.Violations))
	_ = w.Flush()

	if r.OK() {
		return
	}
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nKEY\tSK\tRULE\tDETAIL")
	for _, v := range r.Violations {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", v.NaturalKey, v.SurrogateKey, v.Rule, v.Detail)
	}
	_ = w.Flush()
}
