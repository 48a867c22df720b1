package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/types"
)

var (
	// ErrDailyLimit means the daily trade slot budget is exhausted.
	ErrDailyLimit = errors.New("daily trade limit reached")
	// ErrTickerOpen means a reservation or open position already holds
	// the ticker.
	ErrTickerOpen = errors.New("ticker already open or reserved")
	// ErrHalted means an invariant violation put the ledger in halted
	// mode; no new reservations are accepted until manually cleared.
	ErrHalted = errors.New("ledger halted after invariant violation")
)

// Snapshot is a read-only copy of ledger state handed to the risk
// evaluator. It never aliases live ledger internals.
type Snapshot struct {
	Balance               float64
	StartingBalance       float64
	PeakBalance           float64
	DailyTradeCount       int
	DailyPnL              float64
	ConsecutiveLosses     int
	OpenTickers           []string
	CumulativeMaxDrawdown float64
	LastResetDate         time.Time
}

// HasOpenTicker reports whether ticker is open or reserved.
func (s Snapshot) HasOpenTicker(ticker string) bool {
	for _, t := range s.OpenTickers {
		if t == ticker {
			return true
		}
	}
	return false
}

// Ledger is the sole authoritative store of balance, daily counters,
// open-position slots, drawdown and loss streak. All mutation goes
// through Reserve and Settle under one mutex; it must behave as if
// single-threaded no matter how many producers feed it.
type Ledger struct {
	mu sync.Mutex

	balance           float64
	startingBalance   float64
	peakBalance       float64
	dailyTradeCount   int
	dailyPnL          float64
	consecutiveLosses int
	openTickers       map[string]struct{}
	maxDrawdown       float64
	lastReset         time.Time

	maxTradesPerDay int
	halted          bool
	settled         map[string]struct{}
}

func New(startingBalance float64, maxTradesPerDay int) *Ledger {
	return &Ledger{
		balance:         startingBalance,
		startingBalance: startingBalance,
		peakBalance:     startingBalance,
		openTickers:     map[string]struct{}{},
		maxTradesPerDay: maxTradesPerDay,
		settled:         map[string]struct{}{},
	}
}

// Restore seeds the ledger from a journaled snapshot. Open-ticker
// slots are not part of the snapshot; recovery re-claims them per
// surviving order. Must be called before any reservation.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = s.Balance
	l.peakBalance = s.PeakBalance
	if l.peakBalance < l.balance {
		l.peakBalance = l.balance
	}
	l.dailyTradeCount = s.DailyTradeCount
	l.dailyPnL = s.DailyPnL
	l.consecutiveLosses = s.ConsecutiveLosses
	l.maxDrawdown = s.CumulativeMaxDrawdown
	l.lastReset = s.LastResetDate
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	tickers := make([]string, 0, len(l.openTickers))
	for t := range l.openTickers {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return Snapshot{
		Balance:               l.balance,
		StartingBalance:       l.startingBalance,
		PeakBalance:           l.peakBalance,
		DailyTradeCount:       l.dailyTradeCount,
		DailyPnL:              l.dailyPnL,
		ConsecutiveLosses:     l.consecutiveLosses,
		OpenTickers:           tickers,
		CumulativeMaxDrawdown: l.maxDrawdown,
		LastResetDate:         l.lastReset,
	}
}

// EvaluateAndReserve runs eval against a fresh snapshot and, if it
// approves, claims a daily-trade slot and the ticker-exclusivity slot
// in the same critical section. The evaluation function must be pure:
// no I/O, no clock reads. This is the atomic evaluate-then-reserve
// boundary: two concurrent signals can never both observe the last
// free slot.
func (l *Ledger) EvaluateAndReserve(ticker string, eval func(Snapshot) types.RiskCheckResult) (types.RiskCheckResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return types.RiskCheckResult{}, ErrHalted
	}

	res := eval(l.snapshotLocked())
	if !res.Approved {
		return res, nil
	}

	if err := l.reserveLocked(ticker); err != nil {
		// The evaluator approved against the same snapshot the
		// reservation sees, so a failure here is a stale-check bug.
		return types.RiskCheckResult{}, err
	}
	return res, nil
}

// Reserve claims a daily-trade slot and the ticker slot without an
// evaluation. Used by recovery when re-admitting journaled orders.
func (l *Ledger) Reserve(ticker string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted {
		return ErrHalted
	}
	return l.reserveLocked(ticker)
}

func (l *Ledger) reserveLocked(ticker string) error {
	if l.dailyTradeCount >= l.maxTradesPerDay {
		return ErrDailyLimit
	}
	if _, open := l.openTickers[ticker]; open {
		return ErrTickerOpen
	}
	l.dailyTradeCount++
	l.openTickers[ticker] = struct{}{}
	return nil
}

// Settle applies an order's terminal outcome. Idempotent per order id:
// duplicate callbacks are absorbed. Orders that never traded release
// their ticker slot without touching P&L or the loss streak.
func (l *Ledger) Settle(ctx context.Context, o *types.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.settled[o.ID]; done {
		logger.Debug(ctx, "Duplicate settlement ignored", "order_id", o.ID)
		return
	}
	l.settled[o.ID] = struct{}{}

	if _, open := l.openTickers[o.Ticker]; !open {
		// Settlement always removes a ticker it already owns; a missing
		// slot means the concurrency discipline was broken somewhere.
		l.haltLocked(ctx, "settle for ticker with no reservation", o)
		return
	}
	delete(l.openTickers, o.Ticker)

	if !o.Traded() {
		return
	}

	l.balance += o.RealizedPnL
	l.dailyPnL += o.RealizedPnL

	if l.balance > l.peakBalance {
		l.peakBalance = l.balance
	}
	if l.peakBalance > 0 {
		if dd := (l.peakBalance - l.balance) / l.peakBalance; dd > l.maxDrawdown {
			l.maxDrawdown = dd
		}
	}

	if o.RealizedPnL >= 0 {
		l.consecutiveLosses = 0
	} else {
		l.consecutiveLosses++
	}
}

// ResetDaily zeroes the daily counters at a session boundary. Balance,
// loss streak and drawdown carry across days.
func (l *Ledger) ResetDaily(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyTradeCount = 0
	l.dailyPnL = 0
	l.lastReset = now
}

// Halted reports whether the ledger refuses new reservations.
func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// ClearHalt re-enables reservations after manual review.
func (l *Ledger) ClearHalt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halted = false
}

func (l *Ledger) haltLocked(ctx context.Context, reason string, o *types.Order) {
	l.halted = true
	logger.Error(ctx, "Ledger invariant violation - halting new reservations",
		"reason", reason,
		"order_id", o.ID,
		"ticker", o.Ticker,
	)
}
