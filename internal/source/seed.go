package source

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/db"
)

// Statuses an order moves through.
var Statuses = []string{"pending", "confirmed", "processing", "shipped", "delivered", "cancelled"}

var seedColumns = []string{
	"customer_id", "product_id", "quantity", "unit_price", "total_amount",
	"order_status", "order_date", "created_at", "last_updated",
}

// SeedOptions controls synthetic order generation.
type SeedOptions struct {
	Orders    int
	Customers int64
	Products  int64
	Now       time.Time
	Rand      *rand.Rand
}

// SeedRows generates synthetic pending orders in COPY column order.
func SeedRows(opts SeedOptions) [][]any {
	if opts.Customers <= 0 {
		opts.Customers = 1000
	}
	if opts.Products <= 0 {
		opts.Products = 200
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(uint64(opts.Now.UnixNano()), 1))
	}

	rows := make([][]any, 0, opts.Orders)
	for range opts.Orders {
		qty := 1 + r.IntN(10)
		price := math.Round((5+r.Float64()*495)*100) / 100
		total := math.Round(price*float64(qty)*100) / 100
		at := opts.Now.Add(-time.Duration(r.IntN(3600)) * time.Second).UTC()
		rows = append(rows, []any{
			1 + r.Int64N(opts.Customers),
			1 + r.Int64N(opts.Products),
			qty, price, total,
			Statuses[0], at, at, at,
		})
	}
	return rows
}

// Seed bulk-loads synthetic orders into the source with COPY.
func Seed(ctx context.Context, pool db.Pool, opts SeedOptions) (int64, error) {
	if opts.Orders <= 0 {
		return 0, eris.New("source: seed order count must be positive")
	}
	n, err := db.CopyFrom(ctx, pool, "orders", seedColumns, SeedRows(opts))
	if err != nil {
		return 0, eris.Wrap(err, "source: seed orders")
	}
	return n, nil
}
