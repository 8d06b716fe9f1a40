package source

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/db"
)

// auditTriggerSQL records every deleted order in deleted_orders so that
// polling can see deletions. Re-running it is harmless.
const auditTriggerSQL = `
CREATE TABLE IF NOT EXISTS deleted_orders (
    audit_id     BIGSERIAL PRIMARY KEY,
    order_id     BIGINT NOT NULL,
    customer_id  BIGINT NOT NULL,
    product_id   BIGINT NOT NULL,
    quantity     INTEGER NOT NULL,
    unit_price   NUMERIC(12, 2) NOT NULL,
    total_amount NUMERIC(14, 2) NOT NULL,
    order_status TEXT NOT NULL,
    order_date   TIMESTAMPTZ NOT NULL,
    deleted_at   TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS idx_deleted_orders_deleted_at ON deleted_orders (deleted_at);

CREATE OR REPLACE FUNCTION audit_order_delete() RETURNS trigger AS $$
BEGIN
    INSERT INTO deleted_orders (order_id, customer_id, product_id, quantity, unit_price,
                                total_amount, order_status, order_date)
    VALUES (OLD.id, OLD.customer_id, OLD.product_id, OLD.quantity, OLD.unit_price,
            OLD.total_amount, OLD.order_status, OLD.order_date);
    RETURN OLD;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_orders_audit_delete ON orders;
CREATE TRIGGER trg_orders_audit_delete
    BEFORE DELETE ON orders
    FOR EACH ROW EXECUTE FUNCTION audit_order_delete();
`

// InstallAuditTrigger installs the deletion audit table and trigger on the
// source orders relation.
func InstallAuditTrigger(ctx context.Context, pool db.Pool) error {
	if _, err := pool.Exec(ctx, auditTriggerSQL); err != nil {
		return eris.Wrap(err, "source: install audit trigger")
	}
	zap.L().Info("source: deletion audit trigger installed")
	return nil
}
