package predictor

import (
	"context"
	"time"

	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/types"
)

// Noop never proposes a trade. It is the default provider when signals
// arrive exclusively through the webhook.
type Noop struct{}

var _ interfaces.Predictor = Noop{}

func (Noop) Predict(ctx context.Context, ticker string, now time.Time) (*types.RawSignal, error) {
	return nil, nil
}
