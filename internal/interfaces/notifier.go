package interfaces

// Notifier delivers human-facing alerts. Delivery is fire-and-forget:
// callers log failures and never block the pipeline on them.
type Notifier interface {
	SendAlert(level, message string) error
}
