package sqlite

// schema is applied on every Open. Money columns hold centavos.
// Items are stored as a JSON array on the order row so that an edit replaces
// them in the same single-row UPDATE as the totals.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id               TEXT    PRIMARY KEY,
    restaurant_id    TEXT    NOT NULL,
    restaurant_name  TEXT    NOT NULL DEFAULT '',
    customer_name    TEXT    NOT NULL DEFAULT '',
    customer_phone   TEXT    NOT NULL DEFAULT '',
    customer_address TEXT    NOT NULL DEFAULT '',
    items            TEXT    NOT NULL DEFAULT '[]',
    subtotal         INTEGER NOT NULL DEFAULT 0,
    discount_amount  INTEGER NOT NULL DEFAULT 0,
    delivery_fee     INTEGER NOT NULL DEFAULT 0,
    total_price      INTEGER NOT NULL DEFAULT 0,
    status           TEXT    NOT NULL,
    payment_status   TEXT    NOT NULL,
    payment_method   TEXT    NOT NULL DEFAULT '',
    created_at       TEXT    NOT NULL,
    updated_at       TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_restaurant_created ON orders(restaurant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_payment ON orders(restaurant_id, payment_method, payment_status);

-- Table tab payments. Append-only.
CREATE TABLE IF NOT EXISTS order_payments (
    id        TEXT    PRIMARY KEY,
    order_id  TEXT    NOT NULL REFERENCES orders(id),
    amount    INTEGER NOT NULL,
    method    TEXT    NOT NULL DEFAULT '',
    paid_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_payments_order ON order_payments(order_id, paid_at);
`
