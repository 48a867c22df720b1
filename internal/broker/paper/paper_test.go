package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-trading-bot/internal/broker"
	"news-trading-bot/internal/marketdata"
	"news-trading-bot/internal/types"
)

func TestSubmitFillsAtQuote(t *testing.T) {
	ctx := context.Background()
	md := marketdata.NewStatic(42)
	md.SetPrice("AAPL", 150.50)
	b := New(md)

	ack, err := b.Submit(ctx, types.OrderReq{Ticker: "AAPL", Side: types.DirectionBuy, Qty: 66})
	require.NoError(t, err)
	assert.NotEmpty(t, ack.BrokerID)

	st, err := b.Status(ctx, ack.BrokerID)
	require.NoError(t, err)
	assert.Equal(t, types.BrokerStateFilled, st.State)
	assert.Equal(t, 66, st.FilledQty)
	// Static quotes random-walk a fraction of a percent per fetch.
	assert.InDelta(t, 150.50, st.AvgPrice, 150.50*0.01)
}

func TestSubmitRejectsNonPositiveQty(t *testing.T) {
	b := New(marketdata.NewStatic(42))
	_, err := b.Submit(context.Background(), types.OrderReq{Ticker: "AAPL", Qty: 0})
	require.Error(t, err)
	assert.False(t, broker.IsTransient(err))
}

func TestStatusUnknownOrder(t *testing.T) {
	b := New(marketdata.NewStatic(42))
	_, err := b.Status(context.Background(), "nope")
	require.Error(t, err)
	assert.False(t, broker.IsTransient(err))
}

func TestCancelFilledOrderFails(t *testing.T) {
	ctx := context.Background()
	b := New(marketdata.NewStatic(42))
	ack, err := b.Submit(ctx, types.OrderReq{Ticker: "AAPL", Side: types.DirectionBuy, Qty: 1})
	require.NoError(t, err)
	assert.Error(t, b.Cancel(ctx, ack.BrokerID))
}
