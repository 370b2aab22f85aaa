package main

import (
	"context"
	"os"

	"github.com/vidinfra/subflow/internal/config"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/postgres"
)

// schema holds the engine's tables. The host platform owns the real order
// store in production; these tables back standalone deployments.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id               TEXT PRIMARY KEY,
		email            TEXT NOT NULL,
		paying_customer  BOOLEAN NOT NULL DEFAULT FALSE,
		role             TEXT NOT NULL DEFAULT 'customer',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                        TEXT PRIMARY KEY,
		customer_id               TEXT NOT NULL,
		status                    TEXT NOT NULL,
		currency                  TEXT NOT NULL DEFAULT 'USD',
		payment_method            TEXT NOT NULL DEFAULT '',
		shipping_method           TEXT NOT NULL DEFAULT '',
		recurring_payment_method  TEXT NOT NULL DEFAULT '',
		total                     NUMERIC(20,6) NOT NULL DEFAULT 0,
		discount_total            NUMERIC(20,6) NOT NULL DEFAULT 0,
		tax_total                 NUMERIC(20,6) NOT NULL DEFAULT 0,
		shipping_total            NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_total           NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_discount_total  NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_tax_total       NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_shipping_total  NUMERIC(20,6) NOT NULL DEFAULT 0,
		original_order_id         TEXT NOT NULL DEFAULT '',
		replacement_order_id      TEXT NOT NULL DEFAULT '',
		role                      TEXT NOT NULL DEFAULT '',
		superseded                BOOLEAN NOT NULL DEFAULT FALSE,
		pending_payment           BOOLEAN NOT NULL DEFAULT FALSE,
		payment_timestamp         TIMESTAMPTZ,
		created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_original ON orders (original_order_id) WHERE original_order_id <> ''`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id                 TEXT PRIMARY KEY,
		order_id           TEXT NOT NULL REFERENCES orders (id),
		product_id         TEXT NOT NULL,
		name               TEXT NOT NULL DEFAULT '',
		quantity           INTEGER NOT NULL DEFAULT 1,
		subtotal           NUMERIC(20,6) NOT NULL DEFAULT 0,
		total              NUMERIC(20,6) NOT NULL DEFAULT 0,
		tax                NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_subtotal NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_total    NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring_tax      NUMERIC(20,6) NOT NULL DEFAULT 0,
		meta               JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS order_tax_rows (
		id        TEXT PRIMARY KEY,
		order_id  TEXT NOT NULL REFERENCES orders (id),
		label     TEXT NOT NULL DEFAULT '',
		amount    NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS order_shipping_rows (
		id        TEXT PRIMARY KEY,
		order_id  TEXT NOT NULL REFERENCES orders (id),
		method    TEXT NOT NULL DEFAULT '',
		label     TEXT NOT NULL DEFAULT '',
		amount    NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS order_fee_rows (
		id        TEXT PRIMARY KEY,
		order_id  TEXT NOT NULL REFERENCES orders (id),
		name      TEXT NOT NULL DEFAULT '',
		amount    NUMERIC(20,6) NOT NULL DEFAULT 0,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS order_notes (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_notes_order ON order_notes (order_id)`,
	`CREATE TABLE IF NOT EXISTS scheduled_events (
		id               TEXT NOT NULL,
		hook             TEXT NOT NULL,
		owner_id         TEXT NOT NULL,
		subscription_key TEXT NOT NULL,
		fire_at          TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (hook, owner_id, subscription_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_events_fire_at ON scheduled_events (fire_at)`,
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logger.L.Fatalf("failed to load config: %v", err)
	}
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		logger.L.Fatalf("failed to build logger: %v", err)
	}

	client, err := postgres.NewClient(cfg, log)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	for _, stmt := range schema {
		if _, err := client.DB.ExecContext(ctx, stmt); err != nil {
			log.Errorw("migration statement failed", "error", err)
			os.Exit(1)
		}
	}
	log.Infow("migrations applied", "statements", len(schema))
}
