package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-trading-bot/internal/broker"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/notify"
	"news-trading-bot/internal/types"
)

// fakeBroker scripts submission errors and status poll responses.
type fakeBroker struct {
	mu         sync.Mutex
	submitErrs []error // consumed one per Submit; nil entry means success
	submits    int
	submitAt   []time.Time
	state      types.OrderState
	statusErrs []error
}

func (f *fakeBroker) Submit(ctx context.Context, req types.OrderReq) (types.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.submitAt = append(f.submitAt, time.Now())
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return types.OrderAck{}, err
		}
	}
	return types.OrderAck{BrokerID: "BRK-1", Status: "PLACED"}, nil
}

func (f *fakeBroker) Status(ctx context.Context, brokerID string) (types.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusErrs) > 0 {
		err := f.statusErrs[0]
		f.statusErrs = f.statusErrs[1:]
		if err != nil {
			return types.OrderState{}, err
		}
	}
	return f.state, nil
}

func (f *fakeBroker) Cancel(ctx context.Context, brokerID string) error { return nil }

func (f *fakeBroker) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeBroker) submitTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.submitAt...)
}

type fakeMD struct {
	mu    sync.Mutex
	price float64
}

func (f *fakeMD) Quote(ctx context.Context, ticker string) (types.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.Quote{Ticker: ticker, Price: f.price, Spread: 0.01}, nil
}

func (f *fakeMD) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

// memJournal records saves in memory.
type memJournal struct {
	mu     sync.Mutex
	orders map[string]types.Order
	snaps  int
}

func newMemJournal() *memJournal { return &memJournal{orders: map[string]types.Order{}} }

func (j *memJournal) SaveSignal(ctx context.Context, sig types.Signal) error { return nil }
func (j *memJournal) SaveReservation(ctx context.Context, signalID, ticker string) error {
	return nil
}
func (j *memJournal) SaveOrder(ctx context.Context, o types.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders[o.ID] = o
	return nil
}
func (j *memJournal) SaveLedgerSnapshot(ctx context.Context, snap interfaces.LedgerSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snaps++
	return nil
}
func (j *memJournal) LoadLatestSnapshot(ctx context.Context) (*interfaces.LedgerSnapshot, error) {
	return nil, nil
}
func (j *memJournal) OpenOrders(ctx context.Context) ([]types.Order, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var open []types.Order
	for _, o := range j.orders {
		if !Terminal(o.Status) {
			open = append(open, o)
		}
	}
	return open, nil
}
func (j *memJournal) Close() error { return nil }

func (j *memJournal) get(id string) types.Order {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.orders[id]
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		BrokerTimeout:  time.Second,
		PollInterval:   2 * time.Millisecond,
	}
}

func testOrder() *types.Order {
	return &types.Order{
		ID:          "ord-1",
		SignalID:    "sig-1",
		Ticker:      "AAPL",
		Side:        types.DirectionBuy,
		Quantity:    66,
		EntryPrice:  150.50,
		StopPrice:   149.00,
		TargetPrice: 153.50,
		Status:      types.OrderPending,
		OpenedAt:    time.Now(),
	}
}

type harness struct {
	brk      *fakeBroker
	md       *fakeMD
	led      *ledger.Ledger
	jrnl     *memJournal
	mgr      *Manager
	terminal chan *types.Order
}

func newHarness(t *testing.T, brk *fakeBroker, md *fakeMD) *harness {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	h := &harness{
		brk:      brk,
		md:       md,
		led:      ledger.New(5000, 10),
		jrnl:     newMemJournal(),
		terminal: make(chan *types.Order, 4),
	}
	h.mgr = New(fastConfig(), brk, md, h.led, h.jrnl, notify.Noop{})
	h.mgr.SetTerminalHook(func(o *types.Order) { h.terminal <- o })
	return h
}

func (h *harness) awaitTerminal(t *testing.T) *types.Order {
	t.Helper()
	select {
	case o := <-h.terminal:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("order never reached a terminal state")
		return nil
	}
}

func TestStopOutComputesLossAtStopPrice(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{state: types.OrderState{BrokerID: "BRK-1", State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55}}
	md := &fakeMD{price: 148.50} // below the 149.00 stop
	h := newHarness(t, brk, md)

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderStoppedOut, o.Status)
	assert.Equal(t, 66, o.FilledQty)
	assert.InDelta(t, 150.55, o.FillPrice, 1e-9)
	// Exit at the stop level, not the observed quote.
	assert.InDelta(t, (149.00-150.55)*66, o.RealizedPnL, 1e-9)

	snap := h.led.Snapshot()
	assert.InDelta(t, 5000+(149.00-150.55)*66, snap.Balance, 1e-9)
	assert.Equal(t, 1, snap.ConsecutiveLosses)
	assert.False(t, snap.HasOpenTicker("AAPL"))
	assert.Equal(t, types.OrderStoppedOut, h.jrnl.get("ord-1").Status)
}

func TestTargetHitComputesGainAtTargetPrice(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{state: types.OrderState{State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55}}
	md := &fakeMD{price: 154.00} // above the 153.50 target
	h := newHarness(t, brk, md)

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderTargetHit, o.Status)
	assert.InDelta(t, (153.50-150.55)*66, o.RealizedPnL, 1e-9)
	assert.Equal(t, 0, h.led.Snapshot().ConsecutiveLosses)
}

func TestTransientErrorsRetryThenSucceed(t *testing.T) {
	ctx := context.Background()
	transient := broker.NewTransient(broker.CodeUnavailable, "flaky", nil)
	brk := &fakeBroker{
		submitErrs: []error{transient, transient, nil},
		state:      types.OrderState{State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55},
	}
	md := &fakeMD{price: 154.00}
	h := newHarness(t, brk, md)

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderTargetHit, o.Status)
	assert.Equal(t, 3, brk.submitCount())
	assert.Equal(t, 2, o.RetryCount)
}

func TestRetriesExhaustedFailsWithoutPnL(t *testing.T) {
	ctx := context.Background()
	transient := broker.NewTransient(broker.CodeTimeout, "down", nil)
	brk := &fakeBroker{submitErrs: []error{transient, transient, transient}}
	h := newHarness(t, brk, &fakeMD{price: 150.50})

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderFailed, o.Status)
	assert.False(t, o.Traded())
	assert.InDelta(t, 0, o.RealizedPnL, 1e-9)
	assert.Equal(t, 3, brk.submitCount())

	snap := h.led.Snapshot()
	assert.InDelta(t, 5000, snap.Balance, 1e-9)
	assert.Equal(t, 0, snap.ConsecutiveLosses)
	assert.False(t, snap.HasOpenTicker("AAPL"))
}

func TestFatalErrorFailsImmediately(t *testing.T) {
	ctx := context.Background()
	fatal := broker.NewFatal(broker.CodeInsufficientFunds, "no funds", nil)
	brk := &fakeBroker{submitErrs: []error{fatal}}
	h := newHarness(t, brk, &fakeMD{price: 150.50})

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderFailed, o.Status)
	assert.Equal(t, 1, brk.submitCount())
	assert.Equal(t, 0, o.RetryCount)
}

func TestBrokerRejectionDuringPollFails(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{state: types.OrderState{State: types.BrokerStateRejected}}
	h := newHarness(t, brk, &fakeMD{price: 150.50})

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderFailed, o.Status)
	assert.False(t, o.Traded())
}

func TestCancelDuringRetryBackoff(t *testing.T) {
	ctx := context.Background()
	transient := broker.NewTransient(broker.CodeUnavailable, "down", nil)
	brk := &fakeBroker{submitErrs: []error{transient, transient, transient}}
	h := newHarness(t, brk, &fakeMD{price: 150.50})
	// Stretch the backoff so the cancel lands inside it.
	h.mgr.cfg.InitialBackoff = 200 * time.Millisecond
	h.mgr.cfg.MaxBackoff = 400 * time.Millisecond

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.mgr.Cancel("ord-1", "operator"))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderCancelled, o.Status)
	assert.False(t, o.Traded())
	assert.InDelta(t, 5000, h.led.Snapshot().Balance, 1e-9)
}

func TestCloseCommandDoesNotShortenBackoff(t *testing.T) {
	ctx := context.Background()
	transient := broker.NewTransient(broker.CodeUnavailable, "down", nil)
	brk := &fakeBroker{
		submitErrs: []error{transient, nil},
		state:      types.OrderState{State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55},
	}
	md := &fakeMD{price: 154.00}
	h := newHarness(t, brk, md)
	h.mgr.cfg.InitialBackoff = 250 * time.Millisecond
	h.mgr.cfg.MaxBackoff = 250 * time.Millisecond

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))

	// A sweep lands mid-backoff. Pre-submission there is nothing to
	// close, so the command is absorbed without cutting the wait short.
	time.Sleep(50 * time.Millisecond)
	h.mgr.ForceCloseOpen(ctx, "session_end")
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderTargetHit, o.Status)
	times := brk.submitTimes()
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 250*time.Millisecond)
}

func TestForceCloseOpenExitsAtQuote(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{state: types.OrderState{State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55}}
	md := &fakeMD{price: 151.00} // between stop and target, monitor keeps holding
	h := newHarness(t, brk, md)

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))

	// Wait for the fill to land before sweeping.
	require.Eventually(t, func() bool {
		return h.jrnl.get("ord-1").Status == types.OrderFilled
	}, 5*time.Second, 2*time.Millisecond)

	h.mgr.ForceCloseOpen(ctx, "session_end")
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderManuallyClosed, o.Status)
	assert.InDelta(t, (151.00-150.55)*66, o.RealizedPnL, 1e-9)
	assert.Equal(t, 0, h.mgr.OpenCount())
}

func TestSlippageRecheckCancelsBeforeSubmit(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{}
	md := &fakeMD{price: 153.00} // 1.66% above the 150.50 entry
	h := newHarness(t, brk, md)
	h.mgr.cfg.MaxSlippagePct = 0.01

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderCancelled, o.Status)
	assert.Equal(t, 0, brk.submitCount())
	assert.False(t, h.led.Snapshot().HasOpenTicker("AAPL"))
}

func TestSettlementHappensExactlyOnce(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{state: types.OrderState{State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55}}
	md := &fakeMD{price: 148.50}
	h := newHarness(t, brk, md)

	require.NoError(t, h.led.Reserve("AAPL"))
	require.NoError(t, h.mgr.Start(ctx, testOrder()))
	o := h.awaitTerminal(t)

	// Replaying the settlement against the ledger changes nothing.
	before := h.led.Snapshot()
	h.led.Settle(ctx, o)
	h.led.Settle(ctx, o)
	after := h.led.Snapshot()
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.ConsecutiveLosses, after.ConsecutiveLosses)
}

func TestRecoverResumesJournaledOrders(t *testing.T) {
	ctx := context.Background()
	brk := &fakeBroker{state: types.OrderState{State: types.BrokerStateFilled, FilledQty: 66, AvgPrice: 150.55}}
	md := &fakeMD{price: 154.00}
	h := newHarness(t, brk, md)

	// A SUBMITTED order left behind by a previous process.
	stranded := testOrder()
	stranded.Status = types.OrderSubmitted
	stranded.BrokerID = "BRK-1"
	require.NoError(t, h.jrnl.SaveOrder(ctx, *stranded))

	require.NoError(t, h.mgr.Recover(ctx))
	o := h.awaitTerminal(t)

	assert.Equal(t, types.OrderTargetHit, o.Status)
	assert.Equal(t, 0, brk.submitCount()) // never resubmitted
	assert.False(t, h.led.Snapshot().HasOpenTicker("AAPL"))
}
