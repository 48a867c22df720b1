package interfaces

import (
	"context"
	"time"

	"news-trading-bot/internal/types"
)

// LedgerSnapshot is the journaled view of portfolio state.
type LedgerSnapshot struct {
	TakenAt           time.Time
	Balance           float64
	PeakBalance       float64
	DailyTradeCount   int
	DailyPnL          float64
	ConsecutiveLosses int
	MaxDrawdown       float64
}

// Journal is the durable append-mostly store for signals, orders,
// reservations and ledger snapshots. A reservation row must be
// written before the corresponding broker submission so a crash never
// loses the reservation without a recoverable trail.
type Journal interface {
	SaveSignal(ctx context.Context, sig types.Signal) error
	SaveOrder(ctx context.Context, o types.Order) error
	SaveReservation(ctx context.Context, signalID, ticker string) error
	SaveLedgerSnapshot(ctx context.Context, snap LedgerSnapshot) error
	LoadLatestSnapshot(ctx context.Context) (*LedgerSnapshot, error)
	OpenOrders(ctx context.Context) ([]types.Order, error)
	Close() error
}
