package scheduler

import (
	"context"
	"time"

	"news-trading-bot/internal/auditlog"
	"news-trading-bot/internal/eod"
	"news-trading-bot/internal/intake"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/notify"
	"news-trading-bot/internal/orders"
)

// Config tunes the scheduler loops.
type Config struct {
	Universe          []string
	ScanInterval      time.Duration
	Location          *time.Location
	SessionCloseMin   int // minutes since midnight, session timezone
	AuditRetentionDay int

	// LastReset is the restored snapshot time after a restart. It keeps
	// the first tick from re-running the daily reset mid-day.
	LastReset time.Time
}

// Scheduler is the only component that reads the wall clock to drive
// behavior. It runs the periodic predictor scan, the daily counter
// reset, and the session-end sweep. Everything downstream takes time
// as data.
type Scheduler struct {
	cfg       Config
	intake    *intake.Intake
	predictor interfaces.Predictor
	ledger    *ledger.Ledger
	orders    *orders.Manager
	notifier  interfaces.Notifier
	now       func() time.Time

	lastResetDay string
	lastSweepDay string
}

func New(cfg Config, in *intake.Intake, pred interfaces.Predictor, led *ledger.Ledger, mgr *orders.Manager, notifier interfaces.Notifier) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scheduler{
		cfg:       cfg,
		intake:    in,
		predictor: pred,
		ledger:    led,
		orders:    mgr,
		notifier:  notifier,
		now:       time.Now,
	}
	if !cfg.LastReset.IsZero() {
		s.lastResetDay = cfg.LastReset.In(cfg.Location).Format("2006-01-02")
	}
	return s
}

// SetClock overrides the wall-clock source.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	scan := time.NewTicker(s.cfg.ScanInterval)
	defer scan.Stop()
	housekeeping := time.NewTicker(30 * time.Second)
	defer housekeeping.Stop()

	logger.Info(ctx, "Scheduler started",
		"scan_interval", s.cfg.ScanInterval.String(),
		"universe_size", len(s.cfg.Universe),
	)

	s.Tick(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler stopped")
			return
		case <-scan.C:
			s.scan(ctx, s.now())
		case <-housekeeping.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs the time-boundary checks for the given instant. Exported
// so tests can drive boundaries without a real clock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	local := now.In(s.cfg.Location)
	day := local.Format("2006-01-02")

	if s.lastResetDay != day {
		s.ledger.ResetDaily(now)
		s.lastResetDay = day
		logger.Info(ctx, "Daily counters reset", "day", day)
		if s.cfg.AuditRetentionDay > 0 {
			if err := auditlog.CompressOlder(s.cfg.AuditRetentionDay); err != nil {
				logger.Warn(ctx, "Audit log compression failed", "error", err)
			}
		}
	}

	minute := local.Hour()*60 + local.Minute()
	if minute >= s.cfg.SessionCloseMin && s.lastSweepDay != day {
		s.lastSweepDay = day
		s.sessionEnd(ctx, now)
	}
}

func (s *Scheduler) scan(ctx context.Context, now time.Time) {
	for _, ticker := range s.cfg.Universe {
		raw, err := s.predictor.Predict(ctx, ticker, now)
		if err != nil {
			logger.Warn(ctx, "Predictor failed for ticker", "ticker", ticker, "error", err)
			continue
		}
		if raw == nil {
			continue
		}
		res, err := s.intake.Submit(ctx, *raw)
		if err != nil {
			logger.Warn(ctx, "Scan signal rejected at validation", "ticker", ticker, "error", err)
			continue
		}
		logger.Debug(ctx, "Scan signal processed",
			"ticker", ticker,
			"status", res.Status,
			"signal_id", res.SignalID,
			"reason", res.Reason,
		)
	}
}

// sessionEnd force-closes every open position, then publishes the
// end-of-day summary.
func (s *Scheduler) sessionEnd(ctx context.Context, now time.Time) {
	logger.Info(ctx, "Session close reached - sweeping open positions")
	s.orders.ForceCloseOpen(ctx, "session_end")

	snap := s.ledger.Snapshot()
	summary, err := eod.Build(now, snap.Balance, snap.CumulativeMaxDrawdown)
	if err != nil {
		logger.Warn(ctx, "End-of-day summary failed", "error", err)
		return
	}
	if path, err := eod.WriteCSV(now, summary); err != nil {
		logger.Warn(ctx, "End-of-day CSV write failed", "error", err)
	} else {
		logger.Info(ctx, "End-of-day summary written", "path", path)
	}
	notify.Async(s.notifier, "info", summary.Digest())
}
