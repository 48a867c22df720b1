package kite

import (
	"context"
	"strings"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"news-trading-bot/internal/broker"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/types"
)

// Client adapts the Zerodha Kite Connect API to the Broker and
// MarketData contracts. Used only in LIVE mode.
type Client struct {
	kc       *kiteconnect.Client
	exchange string
}

var (
	_ interfaces.Broker     = (*Client)(nil)
	_ interfaces.MarketData = (*Client)(nil)
)

func New(apiKey, accessToken, exchange string) *Client {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	if exchange == "" {
		exchange = "NSE"
	}
	return &Client{kc: kc, exchange: exchange}
}

func (c *Client) Submit(ctx context.Context, req types.OrderReq) (types.OrderAck, error) {
	txnType := kiteconnect.TransactionTypeBuy
	if req.Side == types.DirectionSell {
		txnType = kiteconnect.TransactionTypeSell
	}

	resp, err := c.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        c.exchange,
		Tradingsymbol:   req.Ticker,
		Product:         kiteconnect.ProductMIS,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: txnType,
		Quantity:        req.Qty,
		Validity:        kiteconnect.ValidityDay,
		Tag:             req.Tag,
	})
	if err != nil {
		return types.OrderAck{}, classify(err)
	}
	return types.OrderAck{BrokerID: resp.OrderID, Status: "PLACED"}, nil
}

func (c *Client) Status(ctx context.Context, brokerID string) (types.OrderState, error) {
	history, err := c.kc.GetOrderHistory(brokerID)
	if err != nil {
		return types.OrderState{}, classify(err)
	}
	if len(history) == 0 {
		return types.OrderState{}, broker.NewTransient(broker.CodeUnavailable, "empty order history", nil)
	}

	last := history[len(history)-1]
	st := types.OrderState{
		BrokerID:  brokerID,
		FilledQty: int(last.FilledQuantity),
		AvgPrice:  last.AveragePrice,
	}
	switch last.Status {
	case "COMPLETE":
		st.State = types.BrokerStateFilled
	case "CANCELLED":
		st.State = types.BrokerStateCancelled
	case "REJECTED":
		st.State = types.BrokerStateRejected
	default:
		if st.FilledQty > 0 {
			st.State = types.BrokerStatePartial
		} else {
			st.State = types.BrokerStateOpen
		}
	}
	return st, nil
}

func (c *Client) Cancel(ctx context.Context, brokerID string) error {
	_, err := c.kc.CancelOrder(kiteconnect.VarietyRegular, brokerID, nil)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) Quote(ctx context.Context, ticker string) (types.Quote, error) {
	instrument := c.exchange + ":" + ticker
	quotes, err := c.kc.GetQuote(instrument)
	if err != nil {
		return types.Quote{}, classify(err)
	}
	q, ok := quotes[instrument]
	if !ok {
		return types.Quote{}, broker.NewFatal(broker.CodeInvalidSymbol, "no quote for "+instrument, nil)
	}

	var spread float64
	if len(q.Depth.Buy) > 0 && len(q.Depth.Sell) > 0 {
		bid, ask := q.Depth.Buy[0].Price, q.Depth.Sell[0].Price
		if ask > bid && bid > 0 {
			spread = ask - bid
		}
	}
	return types.Quote{
		Ticker: ticker,
		Price:  q.LastPrice,
		Spread: spread,
		Volume: float64(q.Volume),
	}, nil
}

// classify maps Kite API errors onto the transient/fatal taxonomy.
// Business-rule rejections never retry; everything else does.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return broker.NewFatal(broker.CodeInsufficientFunds, "insufficient funds", err)
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "unknown symbol"):
		return broker.NewFatal(broker.CodeInvalidSymbol, "invalid instrument", err)
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many"):
		return broker.NewTransient(broker.CodeRateLimited, "rate limited", err)
	default:
		return broker.NewTransient(broker.CodeUnavailable, "kite api error", err)
	}
}
