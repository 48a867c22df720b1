package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"news-trading-bot/internal/broker"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/types"
)

// Broker simulates order execution for DRY_RUN mode. Submissions fill
// immediately at the current quote price; there is no order book.
type Broker struct {
	md interfaces.MarketData

	mu     sync.Mutex
	seq    int
	orders map[string]types.OrderState
}

var _ interfaces.Broker = (*Broker)(nil)

func New(md interfaces.MarketData) *Broker {
	return &Broker{md: md, orders: map[string]types.OrderState{}}
}

func (b *Broker) Submit(ctx context.Context, req types.OrderReq) (types.OrderAck, error) {
	if req.Qty <= 0 {
		return types.OrderAck{}, broker.NewFatal(broker.CodeRejected, "non-positive quantity", nil)
	}
	q, err := b.md.Quote(ctx, req.Ticker)
	if err != nil {
		return types.OrderAck{}, broker.NewTransient(broker.CodeUnavailable, "quote fetch failed", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := fmt.Sprintf("SIM-%d-%d", time.Now().Unix(), b.seq)
	b.orders[id] = types.OrderState{
		BrokerID:  id,
		State:     types.BrokerStateFilled,
		FilledQty: req.Qty,
		AvgPrice:  q.Price,
	}
	return types.OrderAck{BrokerID: id, Status: "SIMULATED", Message: "dry-run"}, nil
}

func (b *Broker) Status(ctx context.Context, brokerID string) (types.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.orders[brokerID]
	if !ok {
		return types.OrderState{}, broker.NewFatal(broker.CodeRejected, "unknown order id", nil)
	}
	return st, nil
}

func (b *Broker) Cancel(ctx context.Context, brokerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.orders[brokerID]
	if !ok {
		return broker.NewFatal(broker.CodeRejected, "unknown order id", nil)
	}
	if st.State == types.BrokerStateFilled {
		return broker.NewFatal(broker.CodeRejected, "order already filled", nil)
	}
	st.State = types.BrokerStateCancelled
	b.orders[brokerID] = st
	return nil
}
