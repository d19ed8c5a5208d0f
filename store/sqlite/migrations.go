package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Billrun store.
var Migrations = migrate.NewGroup("billrun")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_billrun_profiles",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billrun_profiles (
    vendor_id         TEXT PRIMARY KEY,
    name              TEXT NOT NULL DEFAULT '',
    email             TEXT NOT NULL DEFAULT '',
    currency          TEXT NOT NULL DEFAULT '',
    mode              TEXT NOT NULL DEFAULT 'itemized',
    monthly_cap_cents INTEGER,
    primary_tax       TEXT NOT NULL DEFAULT '0',
    due_days          INTEGER NOT NULL DEFAULT 0,
    active            INTEGER NOT NULL DEFAULT 1,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_billrun_profiles_active ON billrun_profiles (active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billrun_profiles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billrun_charge_definitions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billrun_charge_definitions (
    id           TEXT PRIMARY KEY,
    vendor_id    TEXT NOT NULL DEFAULT '',
    project_id   TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    tax_rate     TEXT NOT NULL DEFAULT '0',
    sort_order   INTEGER NOT NULL DEFAULT 0,
    active       INTEGER NOT NULL DEFAULT 1,
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_billrun_charge_defs_vendor ON billrun_charge_definitions (vendor_id, active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billrun_charge_definitions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billrun_items",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billrun_items (
    id                  TEXT PRIMARY KEY,
    kind                TEXT NOT NULL DEFAULT '',
    vendor_id           TEXT NOT NULL DEFAULT '',
    project_id          TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'unbilled',
    currency            TEXT NOT NULL DEFAULT '',
    amount_cents        INTEGER NOT NULL DEFAULT 0,
    tax_rate            TEXT NOT NULL DEFAULT '0',
    charge_id           TEXT NOT NULL DEFAULT '',
    period_label        TEXT NOT NULL DEFAULT '',
    sort_order          INTEGER NOT NULL DEFAULT 0,
    entry_date          TEXT,
    minutes             INTEGER NOT NULL DEFAULT 0,
    block_minutes       INTEGER NOT NULL DEFAULT 0,
    hourly_rate_cents   INTEGER NOT NULL DEFAULT 0,
    hundredths          INTEGER NOT NULL DEFAULT 0,
    rate_per_mile_cents INTEGER NOT NULL DEFAULT 0,
    run_id              TEXT NOT NULL DEFAULT '',
    invoice_id          TEXT NOT NULL DEFAULT '',
    split_from          TEXT NOT NULL DEFAULT '',
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_billrun_items_vendor_status ON billrun_items (vendor_id, status);
CREATE INDEX IF NOT EXISTS idx_billrun_items_run ON billrun_items (run_id, status);
CREATE INDEX IF NOT EXISTS idx_billrun_items_invoice ON billrun_items (invoice_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_billrun_items_charge_period ON billrun_items (charge_id, period_label)
    WHERE kind = 'charge' AND split_from = '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billrun_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billrun_runs",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billrun_runs (
    id                    TEXT PRIMARY KEY,
    vendor_id             TEXT NOT NULL DEFAULT '',
    period_label          TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'created',
    invoice_id            TEXT NOT NULL DEFAULT '',
    selected_items        TEXT NOT NULL DEFAULT '[]',
    carried_forward_cents INTEGER NOT NULL DEFAULT 0,
    currency              TEXT NOT NULL DEFAULT '',
    error_message         TEXT NOT NULL DEFAULT '',
    started_at            TEXT NOT NULL DEFAULT (datetime('now')),
    completed_at          TEXT,
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billrun_runs_vendor_period ON billrun_runs (vendor_id, period_label);
CREATE INDEX IF NOT EXISTS idx_billrun_runs_status ON billrun_runs (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billrun_runs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billrun_invoices",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billrun_invoices (
    id                TEXT PRIMARY KEY,
    run_id            TEXT NOT NULL DEFAULT '',
    vendor_id         TEXT NOT NULL DEFAULT '',
    number            TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'open',
    mode              TEXT NOT NULL DEFAULT 'itemized',
    currency          TEXT NOT NULL DEFAULT '',
    period_label      TEXT NOT NULL DEFAULT '',
    subtotal_cents    INTEGER NOT NULL DEFAULT 0,
    discount_total_cents INTEGER NOT NULL DEFAULT 0,
    tax_total_cents   INTEGER NOT NULL DEFAULT 0,
    total_cents       INTEGER NOT NULL DEFAULT 0,
    amount_paid_cents INTEGER NOT NULL DEFAULT 0,
    lines             TEXT NOT NULL DEFAULT '[]',
    memo              TEXT NOT NULL DEFAULT '[]',
    due_date          TEXT,
    sent_at           TEXT,
    paid_at           TEXT,
    payment_ref       TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billrun_invoices_number ON billrun_invoices (number);
CREATE INDEX IF NOT EXISTS idx_billrun_invoices_vendor_status ON billrun_invoices (vendor_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billrun_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billrun_counters",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billrun_counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billrun_counters`)
				return err
			},
		},
	)
}
