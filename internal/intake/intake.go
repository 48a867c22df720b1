package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"news-trading-bot/internal/auditlog"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/monitoring"
	"news-trading-bot/internal/notify"
	"news-trading-bot/internal/risk"
	"news-trading-bot/internal/types"
	"news-trading-bot/pkg/id"
)

// ValidationError marks a malformed signal payload. Callers translate
// it into their own rejection surface (HTTP 400 for the webhook).
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s %s", e.Field, e.Detail)
}

// executor receives ownership of an approved, reserved order.
type executor interface {
	Start(ctx context.Context, o *types.Order) error
}

// Config tunes intake behavior.
type Config struct {
	Universe     []string
	DedupWindow  time.Duration
	SignalExpiry time.Duration
}

// Intake is the single entry point for trade signals from every
// source. It validates, deduplicates, risk-evaluates and, on approval,
// hands a reserved order to the executor.
type Intake struct {
	cfg      Config
	params   risk.Params
	ledger   *ledger.Ledger
	md       interfaces.MarketData
	journal  interfaces.Journal
	exec     executor
	notifier interfaces.Notifier
	dedup    *dedupCache
	now      func() time.Time
}

func New(cfg Config, params risk.Params, led *ledger.Ledger, md interfaces.MarketData, jrnl interfaces.Journal, exec executor, notifier interfaces.Notifier) *Intake {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if cfg.SignalExpiry <= 0 {
		cfg.SignalExpiry = time.Minute
	}
	return &Intake{
		cfg:      cfg,
		params:   params,
		ledger:   led,
		md:       md,
		journal:  jrnl,
		exec:     exec,
		notifier: notifier,
		dedup:    newDedupCache(cfg.DedupWindow),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source.
func (in *Intake) SetClock(now func() time.Time) { in.now = now }

// Submit processes one raw signal end to end. A ValidationError means
// the payload never became a signal; every other path yields a
// SubmitResult and a journaled signal record.
func (in *Intake) Submit(ctx context.Context, raw types.RawSignal) (types.SubmitResult, error) {
	if err := in.validate(raw); err != nil {
		monitoring.RecordSignal(types.SubmitRejected)
		return types.SubmitResult{}, err
	}

	now := in.now()
	createdAt := raw.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	key := in.dedup.key(raw.Ticker, raw.Source, createdAt)
	if prior, owner := in.dedup.begin(key, now); !owner {
		logger.Info(ctx, "Duplicate signal absorbed",
			"ticker", raw.Ticker,
			"source", raw.Source,
			"original_signal_id", prior.SignalID,
		)
		monitoring.RecordSignal(types.SubmitDuplicate)
		_ = auditlog.Append(auditlog.Entry{
			Kind:     auditlog.KindSignalDecision,
			SignalID: prior.SignalID,
			Ticker:   raw.Ticker,
			Outcome:  types.SubmitDuplicate,
			Reason:   prior.Reason,
		})
		return types.SubmitResult{
			Status:   types.SubmitDuplicate,
			SignalID: prior.SignalID,
			Reason:   prior.Reason,
		}, nil
	}

	sig := types.Signal{
		ID:          id.New(),
		Ticker:      raw.Ticker,
		Direction:   raw.Prediction.Direction,
		Confidence:  raw.Prediction.Confidence,
		EntryPrice:  raw.Prediction.EntryPrice,
		StopPrice:   raw.Prediction.StopPrice,
		TargetPrice: raw.Prediction.TargetPrice,
		Reasoning:   raw.Reasoning,
		Source:      raw.Source,
		CreatedAt:   createdAt,
		Status:      types.SignalPending,
	}

	if now.Sub(createdAt) > in.cfg.SignalExpiry {
		return in.finishRejected(ctx, sig, key, now, "expired", types.SignalExpired), nil
	}

	quote, err := in.md.Quote(ctx, sig.Ticker)
	if err != nil {
		logger.Warn(ctx, "Quote unavailable at intake", "ticker", sig.Ticker, "error", err)
		return in.finishRejected(ctx, sig, key, now, "market_data_unavailable", types.SignalRejected), nil
	}

	res, rerr := in.ledger.EvaluateAndReserve(sig.Ticker, func(snap ledger.Snapshot) types.RiskCheckResult {
		return risk.Evaluate(sig, snap, quote, in.params, now)
	})
	if rerr != nil {
		reason := "halted"
		if !errors.Is(rerr, ledger.ErrHalted) {
			reason = rerr.Error()
		}
		return in.finishRejected(ctx, sig, key, now, reason, types.SignalRejected), nil
	}
	if !res.Approved {
		monitoring.RecordRejection(res.Reason())
		logger.Risk(ctx, sig.Ticker, res.Reason(),
			"signal_id", sig.ID,
			"source", sig.Source,
		)
		return in.finishRejected(ctx, sig, key, now, res.Reason(), types.SignalRejected), nil
	}

	sig.Status = types.SignalApproved
	order := &types.Order{
		ID:          id.New(),
		SignalID:    sig.ID,
		Ticker:      sig.Ticker,
		Side:        sig.Direction,
		Quantity:    res.PositionSize,
		EntryPrice:  sig.EntryPrice,
		StopPrice:   sig.StopPrice,
		TargetPrice: sig.TargetPrice,
		Status:      types.OrderPending,
		OpenedAt:    now,
	}

	// The reservation must be durable before any broker submission can
	// happen, so journal failures roll the approval back instead of
	// racing ahead without a recoverable trail.
	if err := in.journal.SaveSignal(ctx, sig); err != nil {
		return in.abortApproved(ctx, sig, order, key, now, "journal_error", err), nil
	}
	if err := in.journal.SaveReservation(ctx, sig.ID, sig.Ticker); err != nil {
		return in.abortApproved(ctx, sig, order, key, now, "journal_error", err), nil
	}
	if err := in.journal.SaveOrder(ctx, *order); err != nil {
		return in.abortApproved(ctx, sig, order, key, now, "journal_error", err), nil
	}
	if err := in.exec.Start(ctx, order); err != nil {
		return in.abortApproved(ctx, sig, order, key, now, "executor_error", err), nil
	}

	logger.Decision(ctx, sig.Ticker, "APPROVED", "",
		"signal_id", sig.ID,
		"order_id", order.ID,
		"qty", res.PositionSize,
		"risk_amount", res.RiskAmount,
		"risk_reward", res.RiskReward,
	)
	monitoring.RecordSignal(types.SubmitAccepted)
	_ = auditlog.Append(auditlog.Entry{
		Kind:     auditlog.KindSignalDecision,
		SignalID: sig.ID,
		OrderID:  order.ID,
		Ticker:   sig.Ticker,
		Outcome:  types.SubmitAccepted,
		Side:     sig.Direction,
		Qty:      res.PositionSize,
		Price:    sig.EntryPrice,
	})

	notify.Async(in.notifier, "info",
		fmt.Sprintf("%s %s accepted: %d shares from %s", sig.Ticker, sig.Direction, res.PositionSize, sig.Source))

	result := types.SubmitResult{Status: types.SubmitAccepted, SignalID: sig.ID}
	in.dedup.finish(key, result)
	return result, nil
}

// abortApproved releases a held reservation via a non-traded
// cancellation so the ticker slot and P&L stay untouched, then
// surfaces the rejection.
func (in *Intake) abortApproved(ctx context.Context, sig types.Signal, order *types.Order, key string, now time.Time, reason string, cause error) types.SubmitResult {
	order.Status = types.OrderCancelled
	in.ledger.Settle(ctx, order)
	logger.ErrorWithErr(ctx, "Approved signal rolled back", cause,
		"signal_id", sig.ID,
		"order_id", order.ID,
		"reason", reason,
	)
	return in.finishRejected(ctx, sig, key, now, reason, types.SignalRejected)
}

func (in *Intake) finishRejected(ctx context.Context, sig types.Signal, key string, now time.Time, reason, sigStatus string) types.SubmitResult {
	sig.Status = sigStatus
	if err := in.journal.SaveSignal(ctx, sig); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal signal", err, "signal_id", sig.ID)
	}
	monitoring.RecordSignal(types.SubmitRejected)
	_ = auditlog.Append(auditlog.Entry{
		Kind:     auditlog.KindSignalDecision,
		SignalID: sig.ID,
		Ticker:   sig.Ticker,
		Outcome:  types.SubmitRejected,
		Reason:   reason,
	})

	notify.Async(in.notifier, "warning",
		fmt.Sprintf("%s signal rejected: %s", sig.Ticker, reason))

	result := types.SubmitResult{
		Status:   types.SubmitRejected,
		SignalID: sig.ID,
		Reason:   reason,
	}
	in.dedup.finish(key, result)
	return result
}

// validate enforces the payload contract before a signal id is minted.
func (in *Intake) validate(raw types.RawSignal) error {
	if raw.Ticker == "" {
		return &ValidationError{Field: "ticker", Detail: "is required"}
	}
	if len(in.cfg.Universe) > 0 && !contains(in.cfg.Universe, raw.Ticker) {
		return &ValidationError{Field: "ticker", Detail: "not in configured universe"}
	}
	if raw.Source == "" {
		return &ValidationError{Field: "source", Detail: "is required"}
	}
	p := raw.Prediction
	if p.Direction != types.DirectionBuy && p.Direction != types.DirectionSell {
		return &ValidationError{Field: "direction", Detail: "must be BUY or SELL"}
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return &ValidationError{Field: "confidence", Detail: "must be within [0, 100]"}
	}
	if p.EntryPrice <= 0 || p.StopPrice <= 0 || p.TargetPrice <= 0 {
		return &ValidationError{Field: "prices", Detail: "must be positive"}
	}
	if p.Direction == types.DirectionBuy {
		if p.StopPrice >= p.EntryPrice {
			return &ValidationError{Field: "stop_price", Detail: "must be below entry for BUY"}
		}
		if p.TargetPrice <= p.EntryPrice {
			return &ValidationError{Field: "target_price", Detail: "must be above entry for BUY"}
		}
	} else {
		if p.StopPrice <= p.EntryPrice {
			return &ValidationError{Field: "stop_price", Detail: "must be above entry for SELL"}
		}
		if p.TargetPrice >= p.EntryPrice {
			return &ValidationError{Field: "target_price", Detail: "must be below entry for SELL"}
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
