package notify

import (
	"context"

	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/logger"
)

// Noop discards alerts.
type Noop struct{}

var _ interfaces.Notifier = Noop{}

func (Noop) SendAlert(level, message string) error { return nil }

// Async delivers an alert without blocking the caller. Failures are
// logged and dropped; notifications never fail the pipeline.
func Async(n interfaces.Notifier, level, message string) {
	if n == nil {
		return
	}
	go func() {
		if err := n.SendAlert(level, message); err != nil {
			logger.Warn(context.Background(), "Notification delivery failed",
				"level", level,
				"error", err,
			)
		}
	}()
}
