package interfaces

import (
	"context"

	"news-trading-bot/internal/types"
)

type Broker interface {
	Submit(ctx context.Context, req types.OrderReq) (types.OrderAck, error)
	Status(ctx context.Context, brokerID string) (types.OrderState, error)
	Cancel(ctx context.Context, brokerID string) error
}
