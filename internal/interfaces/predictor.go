package interfaces

import (
	"context"
	"time"

	"news-trading-bot/internal/types"
)

// Predictor produces candidate signals during scheduled scans. The
// prediction layer is interchangeable; a nil result means no signal
// for that ticker this scan.
type Predictor interface {
	Predict(ctx context.Context, ticker string, now time.Time) (*types.RawSignal, error)
}
