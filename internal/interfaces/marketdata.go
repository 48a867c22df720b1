package interfaces

import (
	"context"

	"news-trading-bot/internal/types"
)

type MarketData interface {
	Quote(ctx context.Context, ticker string) (types.Quote, error)
}
