package journal

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/types"
)

type SQLiteJournal struct {
	db *sql.DB
}

var _ interfaces.Journal = (*SQLiteJournal)(nil)

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) SaveSignal(ctx context.Context, sig types.Signal) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO signals
		(id, ticker, direction, confidence, entry_price, stop_price, target_price, reasoning, source, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		sig.ID, sig.Ticker, sig.Direction, sig.Confidence, sig.EntryPrice,
		sig.StopPrice, sig.TargetPrice, sig.Reasoning, sig.Source,
		sig.CreatedAt.UTC().Format(time.RFC3339), sig.Status,
	)
	return err
}

func (j *SQLiteJournal) SaveReservation(ctx context.Context, signalID, ticker string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO reservations (signal_id, ticker, reserved_at)
		VALUES (?, ?, ?)`,
		signalID, ticker, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (j *SQLiteJournal) SaveOrder(ctx context.Context, o types.Order) error {
	var closedAt string
	if !o.ClosedAt.IsZero() {
		closedAt = o.ClosedAt.UTC().Format(time.RFC3339)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, signal_id, ticker, side, quantity, entry_price, stop_price, target_price,
		 status, broker_id, fill_price, filled_qty, opened_at, closed_at, realized_pnl, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			broker_id = excluded.broker_id,
			fill_price = excluded.fill_price,
			filled_qty = excluded.filled_qty,
			closed_at = excluded.closed_at,
			realized_pnl = excluded.realized_pnl,
			retry_count = excluded.retry_count`,
		o.ID, o.SignalID, o.Ticker, o.Side, o.Quantity, o.EntryPrice, o.StopPrice,
		o.TargetPrice, o.Status, o.BrokerID, o.FillPrice, o.FilledQty,
		o.OpenedAt.UTC().Format(time.RFC3339), closedAt, o.RealizedPnL, o.RetryCount,
	)
	return err
}

func (j *SQLiteJournal) SaveLedgerSnapshot(ctx context.Context, snap interfaces.LedgerSnapshot) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO ledger_snapshots
		(taken_at, balance, peak_balance, daily_trade_count, daily_pnl, consecutive_losses, max_drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), snap.Balance, snap.PeakBalance,
		snap.DailyTradeCount, snap.DailyPnL, snap.ConsecutiveLosses, snap.MaxDrawdown,
	)
	return err
}

// LoadLatestSnapshot returns the most recent ledger snapshot, or nil
// when the journal has none. Used on startup to restore balance,
// drawdown and the loss streak across restarts.
func (j *SQLiteJournal) LoadLatestSnapshot(ctx context.Context) (*interfaces.LedgerSnapshot, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT taken_at, balance, peak_balance, daily_trade_count, daily_pnl, consecutive_losses, max_drawdown
		FROM ledger_snapshots
		ORDER BY taken_at DESC, rowid DESC
		LIMIT 1`,
	)
	var snap interfaces.LedgerSnapshot
	var takenAt string
	err := row.Scan(&takenAt, &snap.Balance, &snap.PeakBalance, &snap.DailyTradeCount,
		&snap.DailyPnL, &snap.ConsecutiveLosses, &snap.MaxDrawdown)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
	return &snap, nil
}

// OpenOrders returns every order not yet in a terminal state, oldest
// first. Used on startup to resume interrupted lifecycles.
func (j *SQLiteJournal) OpenOrders(ctx context.Context) ([]types.Order, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, signal_id, ticker, side, quantity, entry_price, stop_price, target_price,
		       status, broker_id, fill_price, filled_qty, opened_at, retry_count
		FROM orders
		WHERE status IN (?, ?, ?, ?)
		ORDER BY id`,
		types.OrderPending, types.OrderSubmitted, types.OrderFilled, types.OrderPartiallyFilled,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var o types.Order
		var brokerID, openedAt sql.NullString
		var fillPrice sql.NullFloat64
		var filledQty, retries sql.NullInt64
		if err := rows.Scan(&o.ID, &o.SignalID, &o.Ticker, &o.Side, &o.Quantity,
			&o.EntryPrice, &o.StopPrice, &o.TargetPrice, &o.Status,
			&brokerID, &fillPrice, &filledQty, &openedAt, &retries); err != nil {
			return nil, err
		}
		o.BrokerID = brokerID.String
		o.FillPrice = fillPrice.Float64
		o.FilledQty = int(filledQty.Int64)
		o.RetryCount = int(retries.Int64)
		if openedAt.Valid {
			o.OpenedAt, _ = time.Parse(time.RFC3339, openedAt.String)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
