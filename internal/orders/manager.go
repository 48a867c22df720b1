package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"news-trading-bot/internal/auditlog"
	"news-trading-bot/internal/broker"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/monitoring"
	"news-trading-bot/internal/notify"
	"news-trading-bot/internal/types"
)

// Config tunes the order lifecycle.
type Config struct {
	MaxRetries     int           // submission attempts before FAILED
	InitialBackoff time.Duration // doubles per attempt
	MaxBackoff     time.Duration // backoff cap
	BrokerTimeout  time.Duration // per broker call
	PollInterval   time.Duration // fill poll / price monitor cadence
	MaxSlippagePct float64       // <= 0 disables the pre-submit re-check
}

type commandKind int

const (
	cmdCancel commandKind = iota
	cmdClose
)

type command struct {
	kind   commandKind
	reason string
}

type trackedOrder struct {
	order *types.Order
	cmds  chan command
}

// Manager owns every order's lifecycle from reservation hand-off to
// settlement. One goroutine per order id serializes its transitions;
// nothing else mutates an order after Start.
type Manager struct {
	cfg      Config
	brk      interfaces.Broker
	md       interfaces.MarketData
	ledger   *ledger.Ledger
	journal  interfaces.Journal
	notifier interfaces.Notifier
	now      func() time.Time

	mu      sync.Mutex
	tracked map[string]*trackedOrder
	wg      sync.WaitGroup

	onTerminal func(*types.Order)
}

func New(cfg Config, brk interfaces.Broker, md interfaces.MarketData, led *ledger.Ledger, jrnl interfaces.Journal, notifier interfaces.Notifier) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	if cfg.BrokerTimeout <= 0 {
		cfg.BrokerTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Manager{
		cfg:      cfg,
		brk:      brk,
		md:       md,
		ledger:   led,
		journal:  jrnl,
		notifier: notifier,
		now:      time.Now,
		tracked:  map[string]*trackedOrder{},
	}
}

// SetTerminalHook registers a callback invoked once per order after
// settlement. Used by tests and the run loop.
func (m *Manager) SetTerminalHook(fn func(*types.Order)) { m.onTerminal = fn }

// SetClock overrides the timestamp source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Start takes ownership of a freshly reserved order and drives it to a
// terminal state in the background. The order must already be
// journaled by the caller along with its reservation.
func (m *Manager) Start(ctx context.Context, o *types.Order) error {
	m.mu.Lock()
	if _, dup := m.tracked[o.ID]; dup {
		m.mu.Unlock()
		return fmt.Errorf("order %s already tracked", o.ID)
	}
	t := &trackedOrder{order: o, cmds: make(chan command, 4)}
	m.tracked[o.ID] = t
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, t)
	return nil
}

// Recover reloads non-terminal orders from the journal after a restart
// and resumes their lifecycles. Reservations are re-claimed so the
// ledger's open-ticker set matches the journal's view.
func (m *Manager) Recover(ctx context.Context) error {
	open, err := m.journal.OpenOrders(ctx)
	if err != nil {
		return err
	}
	for i := range open {
		o := open[i]
		if err := m.ledger.Reserve(o.Ticker); err != nil {
			logger.Warn(ctx, "Could not re-reserve recovered order", "order_id", o.ID, "ticker", o.Ticker, "error", err)
		}
		if err := m.Start(ctx, &o); err != nil {
			return err
		}
		logger.Info(ctx, "Recovered in-flight order", "order_id", o.ID, "ticker", o.Ticker, "status", o.Status)
	}
	return nil
}

// Cancel requests cancellation. Only honored before the broker has
// acknowledged the submission; once SUBMITTED the order runs to a
// normal exit.
func (m *Manager) Cancel(orderID, reason string) error {
	m.mu.Lock()
	t, ok := m.tracked[orderID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown or already settled order %s", orderID)
	}
	select {
	case t.cmds <- command{kind: cmdCancel, reason: reason}:
	default:
	}
	return nil
}

// ForceCloseOpen submits market closes for every filled order, without
// further risk checks. Invoked by the session-end sweep.
func (m *Manager) ForceCloseOpen(ctx context.Context, reason string) {
	m.mu.Lock()
	targets := make([]*trackedOrder, 0, len(m.tracked))
	for _, t := range m.tracked {
		targets = append(targets, t)
	}
	m.mu.Unlock()

	for _, t := range targets {
		select {
		case t.cmds <- command{kind: cmdClose, reason: reason}:
		default:
		}
	}
	logger.Info(ctx, "Session-end sweep dispatched", "open_orders", len(targets), "reason", reason)
}

// OpenCount returns the number of orders still being managed.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// Wait blocks until every lifecycle goroutine has exited.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) run(ctx context.Context, t *trackedOrder) {
	defer m.wg.Done()
	o := t.order

	if o.Status == types.OrderPending {
		if !m.submitPhase(ctx, t) {
			return
		}
	}
	if o.Status == types.OrderSubmitted {
		if !m.fillPhase(ctx, t) {
			return
		}
	}
	if o.Status == types.OrderFilled || o.Status == types.OrderPartiallyFilled {
		m.monitorPhase(ctx, t)
	}
}

// submitPhase drives PENDING to SUBMITTED, CANCELLED or FAILED.
// Returns false when the order reached a terminal state.
func (m *Manager) submitPhase(ctx context.Context, t *trackedOrder) bool {
	o := t.order

	if m.cancelRequested(t) {
		m.settle(ctx, o, types.OrderCancelled, 0, "cancel_requested")
		return false
	}

	if m.cfg.MaxSlippagePct > 0 && m.slippageExceeded(ctx, o) {
		m.settle(ctx, o, types.OrderCancelled, 0, "slippage_exceeded")
		return false
	}

	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.BrokerTimeout)
		ack, err := m.brk.Submit(callCtx, types.OrderReq{
			Ticker: o.Ticker,
			Side:   o.Side,
			Qty:    o.Quantity,
			Tag:    o.SignalID,
		})
		cancel()

		if err == nil {
			o.BrokerID = ack.BrokerID
			m.transition(ctx, o, types.OrderSubmitted)
			return true
		}

		if !broker.IsTransient(err) {
			logger.ErrorWithErr(ctx, "Fatal broker error on submission", err, "order_id", o.ID, "ticker", o.Ticker)
			m.settle(ctx, o, types.OrderFailed, 0, "fatal_broker_error")
			return false
		}

		o.RetryCount++
		if attempt == m.cfg.MaxRetries {
			break
		}

		delay := m.backoff(attempt)
		logger.Warn(ctx, "Transient broker error - retrying submission",
			"order_id", o.ID,
			"ticker", o.Ticker,
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err,
		)
		timer := time.NewTimer(delay)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				m.persist(ctx, o)
				m.untrack(o.ID)
				return false
			case cmd := <-t.cmds:
				if cmd.kind == cmdCancel {
					timer.Stop()
					m.settle(ctx, o, types.OrderCancelled, 0, cmd.reason)
					return false
				}
				// A close command means nothing before submission; keep
				// waiting out the backoff.
			case <-timer.C:
				break wait
			}
		}
	}

	m.settle(ctx, o, types.OrderFailed, 0, "retries_exhausted")
	return false
}

// fillPhase polls broker status until a fill is confirmed. Returns
// false when the order reached a terminal state.
func (m *Manager) fillPhase(ctx context.Context, t *trackedOrder) bool {
	o := t.order
	pollFailures := 0
	tick := time.NewTicker(m.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			m.persist(ctx, o)
			m.untrack(o.ID)
			return false
		case cmd := <-t.cmds:
			// Broker already acknowledged; cancellation no longer
			// applies and a close command is meaningless pre-fill.
			logger.Debug(ctx, "Command ignored while awaiting fill", "order_id", o.ID, "cmd", int(cmd.kind))
		case <-tick.C:
			callCtx, cancel := context.WithTimeout(ctx, m.cfg.BrokerTimeout)
			st, err := m.brk.Status(callCtx, o.BrokerID)
			cancel()
			if err != nil {
				if !broker.IsTransient(err) {
					m.settle(ctx, o, types.OrderFailed, 0, "fatal_broker_error")
					return false
				}
				pollFailures++
				if pollFailures > m.cfg.MaxRetries {
					m.settle(ctx, o, types.OrderFailed, 0, "status_poll_exhausted")
					return false
				}
				continue
			}
			pollFailures = 0

			switch st.State {
			case types.BrokerStateFilled:
				o.FillPrice = st.AvgPrice
				o.FilledQty = st.FilledQty
				if o.FilledQty == 0 {
					o.FilledQty = o.Quantity
				}
				m.transition(ctx, o, types.OrderFilled)
				return true
			case types.BrokerStatePartial:
				o.FillPrice = st.AvgPrice
				o.FilledQty = st.FilledQty
				if o.Status != types.OrderPartiallyFilled {
					m.transition(ctx, o, types.OrderPartiallyFilled)
				}
				return true
			case types.BrokerStateRejected:
				m.settle(ctx, o, types.OrderFailed, 0, "broker_rejected")
				return false
			case types.BrokerStateCancelled:
				m.settle(ctx, o, types.OrderCancelled, 0, "broker_cancelled")
				return false
			}
		}
	}
}

// monitorPhase watches quotes for stop/target crossings and handles
// forced closes until the position exits.
func (m *Manager) monitorPhase(ctx context.Context, t *trackedOrder) {
	o := t.order
	tick := time.NewTicker(m.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			m.persist(ctx, o)
			m.untrack(o.ID)
			return
		case cmd := <-t.cmds:
			if cmd.kind != cmdClose {
				logger.Debug(ctx, "Cancellation impossible after fill", "order_id", o.ID)
				continue
			}
			exit := o.EntryPrice
			if q, err := m.md.Quote(ctx, o.Ticker); err == nil {
				exit = q.Price
			}
			m.settle(ctx, o, types.OrderManuallyClosed, exit, cmd.reason)
			return
		case <-tick.C:
			if o.Status == types.OrderPartiallyFilled {
				m.pollRemainder(ctx, o)
			}
			q, err := m.md.Quote(ctx, o.Ticker)
			if err != nil {
				logger.Debug(ctx, "Quote fetch failed during monitoring", "ticker", o.Ticker, "error", err)
				continue
			}
			if status, exit, hit := crossing(o, q.Price); hit {
				m.settle(ctx, o, status, exit, "price_crossing")
				return
			}
		}
	}
}

// crossing checks stop/target levels. Exits price at the level itself,
// not the observed quote, mirroring a resting exit order.
func crossing(o *types.Order, price float64) (status string, exit float64, hit bool) {
	if o.Side == types.DirectionBuy {
		if price <= o.StopPrice {
			return types.OrderStoppedOut, o.StopPrice, true
		}
		if price >= o.TargetPrice {
			return types.OrderTargetHit, o.TargetPrice, true
		}
		return "", 0, false
	}
	if price >= o.StopPrice {
		return types.OrderStoppedOut, o.StopPrice, true
	}
	if price <= o.TargetPrice {
		return types.OrderTargetHit, o.TargetPrice, true
	}
	return "", 0, false
}

func (m *Manager) pollRemainder(ctx context.Context, o *types.Order) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.BrokerTimeout)
	st, err := m.brk.Status(callCtx, o.BrokerID)
	cancel()
	if err != nil {
		return
	}
	if st.State == types.BrokerStateFilled {
		o.FillPrice = st.AvgPrice
		o.FilledQty = st.FilledQty
		m.transition(ctx, o, types.OrderFilled)
	} else if st.FilledQty > o.FilledQty {
		o.FilledQty = st.FilledQty
		o.FillPrice = st.AvgPrice
		m.persist(ctx, o)
	}
}

// slippageExceeded re-checks the entry against a fresh quote before
// committing capital. Price drift toward a better entry never blocks.
func (m *Manager) slippageExceeded(ctx context.Context, o *types.Order) bool {
	q, err := m.md.Quote(ctx, o.Ticker)
	if err != nil || o.EntryPrice <= 0 {
		return false
	}
	var adverse float64
	if o.Side == types.DirectionBuy {
		adverse = (q.Price - o.EntryPrice) / o.EntryPrice
	} else {
		adverse = (o.EntryPrice - q.Price) / o.EntryPrice
	}
	if adverse > m.cfg.MaxSlippagePct {
		logger.Risk(ctx, o.Ticker, "SLIPPAGE_EXCEEDED",
			"order_id", o.ID,
			"entry_price", o.EntryPrice,
			"quote_price", q.Price,
			"adverse_pct", adverse,
		)
		return true
	}
	return false
}

func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.MaxBackoff {
			return m.cfg.MaxBackoff
		}
	}
	if delay > m.cfg.MaxBackoff {
		delay = m.cfg.MaxBackoff
	}
	return delay
}

func (m *Manager) transition(ctx context.Context, o *types.Order, to string) {
	if !canTransition(o.Status, to) {
		logger.Error(ctx, "Invalid order transition attempted",
			"order_id", o.ID,
			"from", o.Status,
			"to", to,
		)
		return
	}
	logger.Debug(ctx, "Order transition", "order_id", o.ID, "from", o.Status, "to", to)
	o.Status = to
	m.persist(ctx, o)
}

// settle moves the order into a terminal state and applies its outcome
// exactly once: realized P&L, ledger settlement, journal, audit
// record, metrics and notification.
func (m *Manager) settle(ctx context.Context, o *types.Order, status string, exitPrice float64, reason string) {
	if !canTransition(o.Status, status) {
		logger.Error(ctx, "Invalid terminal transition attempted", "order_id", o.ID, "from", o.Status, "to", status)
		return
	}
	o.Status = status
	o.ClosedAt = m.now()
	if o.Traded() && exitPrice > 0 {
		if o.Side == types.DirectionBuy {
			o.RealizedPnL = (exitPrice - o.FillPrice) * float64(o.FilledQty)
		} else {
			o.RealizedPnL = (o.FillPrice - exitPrice) * float64(o.FilledQty)
		}
	}

	m.persist(ctx, o)
	m.ledger.Settle(ctx, o)

	snap := m.ledger.Snapshot()
	if err := m.journal.SaveLedgerSnapshot(ctx, interfaces.LedgerSnapshot{
		Balance:           snap.Balance,
		PeakBalance:       snap.PeakBalance,
		DailyTradeCount:   snap.DailyTradeCount,
		DailyPnL:          snap.DailyPnL,
		ConsecutiveLosses: snap.ConsecutiveLosses,
		MaxDrawdown:       snap.CumulativeMaxDrawdown,
	}); err != nil {
		logger.Warn(ctx, "Failed to journal ledger snapshot", "error", err)
	}
	monitoring.UpdateLedger(snap.Balance, snap.CumulativeMaxDrawdown, m.ledger.Halted())
	monitoring.RecordOrderTerminal(status)

	_ = auditlog.Append(auditlog.Entry{
		Kind:    auditlog.KindOrderEvent,
		OrderID: o.ID,
		Ticker:  o.Ticker,
		Outcome: status,
		Reason:  reason,
		Side:    o.Side,
		Qty:     o.FilledQty,
		Price:   exitPrice,
		PnL:     o.RealizedPnL,
	})

	logger.Trade(ctx, o.Ticker, o.Side, o.FilledQty, exitPrice, o.ID,
		"status", status,
		"reason", reason,
		"realized_pnl", o.RealizedPnL,
	)
	notify.Async(m.notifier, alertLevel(status),
		fmt.Sprintf("%s %s closed: %s (pnl %.2f)", o.Ticker, o.Side, status, o.RealizedPnL))

	m.untrack(o.ID)
	if m.onTerminal != nil {
		m.onTerminal(o)
	}
}

func alertLevel(status string) string {
	switch status {
	case types.OrderTargetHit:
		return "success"
	case types.OrderFailed:
		return "error"
	default:
		return "warning"
	}
}

func (m *Manager) persist(ctx context.Context, o *types.Order) {
	if err := m.journal.SaveOrder(ctx, *o); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal order", err, "order_id", o.ID)
	}
}

func (m *Manager) untrack(orderID string) {
	m.mu.Lock()
	delete(m.tracked, orderID)
	m.mu.Unlock()
}

func (m *Manager) cancelRequested(t *trackedOrder) bool {
	select {
	case cmd := <-t.cmds:
		return cmd.kind == cmdCancel
	default:
		return false
	}
}
