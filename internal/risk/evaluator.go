package risk

import (
	"math"
	"time"

	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/types"
)

// Check names surfaced as rejection reasons, in evaluation order.
const (
	ReasonDailyTradeLimit    = "daily_trade_limit"
	ReasonConsecutiveLosses  = "consecutive_losses"
	ReasonDailyLossLimit     = "daily_loss_limit"
	ReasonMarketHours        = "market_hours"
	ReasonSpreadTooWide      = "spread_too_wide"
	ReasonCorrelatedPosition = "correlated_position"
	ReasonZeroSize           = "zero_size"
)

// Params are the risk policy knobs. Session times are minutes since
// midnight in Location.
type Params struct {
	MaxTradesPerDay      int
	MaxRiskPerTrade      float64
	MaxDailyLossFraction float64
	MaxConsecutiveLosses int
	MaxPositionFraction  float64 // <= 0 disables the exposure cap
	MaxSpreadPct         float64

	SessionOpenMinute  int
	SessionCloseMinute int
	RestrictedMinutes  int
	Location           *time.Location
}

// Evaluate runs the fixed-order risk checks for sig against a ledger
// snapshot and a quote. It is a pure function: identical inputs yield
// identical output. Time arrives as a parameter, never from a clock.
// The first failing check short-circuits and is the sole surfaced
// reason.
func Evaluate(sig types.Signal, snap ledger.Snapshot, quote types.Quote, p Params, now time.Time) types.RiskCheckResult {
	if snap.DailyTradeCount >= p.MaxTradesPerDay {
		return reject(ReasonDailyTradeLimit)
	}
	if snap.ConsecutiveLosses >= p.MaxConsecutiveLosses {
		return reject(ReasonConsecutiveLosses)
	}
	if snap.DailyPnL <= -p.MaxDailyLossFraction*snap.Balance {
		return reject(ReasonDailyLossLimit)
	}
	if !withinTradableWindow(now, p) {
		return reject(ReasonMarketHours)
	}
	if p.MaxSpreadPct > 0 && quote.SpreadPct() > p.MaxSpreadPct {
		return reject(ReasonSpreadTooWide)
	}
	if snap.HasOpenTicker(sig.Ticker) {
		return reject(ReasonCorrelatedPosition)
	}

	qty := positionSize(sig, snap.Balance, p)
	if qty <= 0 {
		return reject(ReasonZeroSize)
	}

	perShare := math.Abs(sig.EntryPrice - sig.StopPrice)
	return types.RiskCheckResult{
		Approved:     true,
		PositionSize: qty,
		RiskAmount:   float64(qty) * perShare,
		RiskReward:   riskReward(sig),
	}
}

// positionSize computes floor(balance*maxRisk / |entry-stop|), capped
// so exposure never exceeds balance*maxPositionFraction.
func positionSize(sig types.Signal, balance float64, p Params) int {
	perShare := math.Abs(sig.EntryPrice - sig.StopPrice)
	if perShare <= 0 || sig.EntryPrice <= 0 {
		return 0
	}
	riskCapital := balance * p.MaxRiskPerTrade
	qty := int(riskCapital / perShare)

	if p.MaxPositionFraction > 0 {
		maxQty := int(balance * p.MaxPositionFraction / sig.EntryPrice)
		if qty > maxQty {
			qty = maxQty
		}
	}
	return qty
}

func riskReward(sig types.Signal) float64 {
	risk := math.Abs(sig.EntryPrice - sig.StopPrice)
	reward := math.Abs(sig.TargetPrice - sig.EntryPrice)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// withinTradableWindow excludes time outside the session and the first
// and last RestrictedMinutes of it.
func withinTradableWindow(now time.Time, p Params) bool {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if minute < p.SessionOpenMinute || minute >= p.SessionCloseMinute {
		return false
	}
	if minute < p.SessionOpenMinute+p.RestrictedMinutes {
		return false
	}
	if minute >= p.SessionCloseMinute-p.RestrictedMinutes {
		return false
	}
	return true
}

func reject(reason string) types.RiskCheckResult {
	return types.RiskCheckResult{Approved: false, Reasons: []string{reason}}
}
