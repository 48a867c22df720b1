package brokerobs

import (
	"context"
	"time"

	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/monitoring"
	"news-trading-bot/internal/trace"
	"news-trading-bot/internal/types"
)

type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap adds logging, tracing and metrics around every broker call.
func Wrap(b interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: b}
}

func (ob *observableBroker) Submit(ctx context.Context, req types.OrderReq) (types.OrderAck, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Submit")
	defer span.End()

	start := time.Now()
	ack, err := ob.broker.Submit(ctx, req)
	if err != nil {
		monitoring.RecordBrokerError("submit")
		logger.ErrorWithErrSkip(ctx, 1, "Broker submission failed", err,
			"ticker", req.Ticker,
			"side", req.Side,
			"qty", req.Qty,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return ack, err
	}

	logger.InfoSkip(ctx, 1, "Broker accepted order",
		"ticker", req.Ticker,
		"side", req.Side,
		"qty", req.Qty,
		"broker_id", ack.BrokerID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ack, nil
}

func (ob *observableBroker) Status(ctx context.Context, brokerID string) (types.OrderState, error) {
	st, err := ob.broker.Status(ctx, brokerID)
	if err != nil {
		monitoring.RecordBrokerError("status")
		logger.Debug(ctx, "Broker status poll failed", "broker_id", brokerID, "error", err)
	}
	return st, err
}

func (ob *observableBroker) Cancel(ctx context.Context, brokerID string) error {
	err := ob.broker.Cancel(ctx, brokerID)
	if err != nil {
		monitoring.RecordBrokerError("cancel")
		logger.ErrorWithErrSkip(ctx, 1, "Broker cancel failed", err, "broker_id", brokerID)
		return err
	}
	logger.InfoSkip(ctx, 1, "Broker cancelled order", "broker_id", brokerID)
	return nil
}
