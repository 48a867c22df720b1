package journal

// Schema creates the journal tables. Signals and reservations are
// append-only; orders are upserted as the state machine advances so
// recovery can resume non-terminal orders.
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	id            TEXT PRIMARY KEY,
	ticker        TEXT NOT NULL,
	direction     TEXT NOT NULL,
	confidence    REAL NOT NULL,
	entry_price   REAL NOT NULL,
	stop_price    REAL NOT NULL,
	target_price  REAL NOT NULL,
	reasoning     TEXT,
	source        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	status        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
	signal_id   TEXT NOT NULL,
	ticker      TEXT NOT NULL,
	reserved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	signal_id     TEXT NOT NULL,
	ticker        TEXT NOT NULL,
	side          TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	entry_price   REAL NOT NULL,
	stop_price    REAL NOT NULL,
	target_price  REAL NOT NULL,
	status        TEXT NOT NULL,
	broker_id     TEXT,
	fill_price    REAL,
	filled_qty    INTEGER,
	opened_at     TEXT NOT NULL,
	closed_at     TEXT,
	realized_pnl  REAL,
	retry_count   INTEGER
);

CREATE TABLE IF NOT EXISTS ledger_snapshots (
	taken_at           TEXT NOT NULL,
	balance            REAL NOT NULL,
	peak_balance       REAL NOT NULL,
	daily_trade_count  INTEGER NOT NULL,
	daily_pnl          REAL NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	max_drawdown       REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
`
