package types

import "time"

// Direction of a trade signal.
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

// Signal lifecycle statuses.
const (
	SignalPending  = "PENDING"
	SignalApproved = "APPROVED"
	SignalRejected = "REJECTED"
	SignalExpired  = "EXPIRED"
)

// Order lifecycle statuses. Terminal states are STOPPED_OUT,
// TARGET_HIT, MANUALLY_CLOSED, CANCELLED and FAILED.
const (
	OrderPending         = "PENDING"
	OrderSubmitted       = "SUBMITTED"
	OrderFilled          = "FILLED"
	OrderPartiallyFilled = "PARTIALLY_FILLED"
	OrderStoppedOut      = "STOPPED_OUT"
	OrderTargetHit       = "TARGET_HIT"
	OrderManuallyClosed  = "MANUALLY_CLOSED"
	OrderCancelled       = "CANCELLED"
	OrderFailed          = "FAILED"
)

// Prediction is the payload delivered by an external signal source.
type Prediction struct {
	Direction   string  `json:"direction"`
	Confidence  float64 `json:"confidence"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
}

// RawSignal is an unvalidated candidate trade proposal, either from a
// webhook or from a scheduled scan.
type RawSignal struct {
	Ticker     string         `json:"ticker"`
	Prediction Prediction     `json:"prediction"`
	Source     string         `json:"source"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// Signal is a validated trade proposal awaiting (or past) risk
// evaluation. Immutable once terminal except for Status.
type Signal struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Direction   string    `json:"direction"`
	Confidence  float64   `json:"confidence"`
	EntryPrice  float64   `json:"entry_price"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	Reasoning   string    `json:"reasoning,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
}

// Order tracks capital committed against an approved signal through
// its whole lifecycle. Owned exclusively by the order manager.
type Order struct {
	ID          string    `json:"id"`
	SignalID    string    `json:"signal_id"`
	Ticker      string    `json:"ticker"`
	Side        string    `json:"side"`
	Quantity    int       `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	Status      string    `json:"status"`
	BrokerID    string    `json:"broker_id,omitempty"`
	FillPrice   float64   `json:"fill_price,omitempty"`
	FilledQty   int       `json:"filled_qty,omitempty"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	RealizedPnL float64   `json:"realized_pnl"`
	RetryCount  int       `json:"retry_count"`
}

// Traded reports whether the order ever held a position. Orders that
// never filled release their reservation without touching P&L.
func (o *Order) Traded() bool {
	return o.FilledQty > 0
}

// RiskCheckResult is the outcome of a risk evaluation. Reasons holds
// the first failed check name; empty means approved.
type RiskCheckResult struct {
	Approved     bool     `json:"approved"`
	Reasons      []string `json:"reasons,omitempty"`
	PositionSize int      `json:"position_size"`
	RiskAmount   float64  `json:"risk_amount,omitempty"`
	RiskReward   float64  `json:"risk_reward,omitempty"`
}

// Reason returns the surfaced rejection reason, if any.
func (r RiskCheckResult) Reason() string {
	if len(r.Reasons) == 0 {
		return ""
	}
	return r.Reasons[0]
}

// Quote is a point-in-time market data snapshot for one ticker.
type Quote struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Spread float64 `json:"spread"`
	Volume float64 `json:"volume"`
}

// SpreadPct returns the spread as a fraction of price.
func (q Quote) SpreadPct() float64 {
	if q.Price <= 0 {
		return 0
	}
	return q.Spread / q.Price
}

// Submit outcomes returned to signal sources.
const (
	SubmitAccepted  = "accepted"
	SubmitRejected  = "rejected"
	SubmitDuplicate = "duplicate"
)

// SubmitResult is the intake response contract.
type SubmitResult struct {
	Status   string `json:"status"`
	SignalID string `json:"signal_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// OrderReq is a broker order request.
type OrderReq struct {
	Ticker string
	Side   string
	Qty    int
	Tag    string
}

// OrderAck is the broker's acknowledgement of a submitted order.
type OrderAck struct {
	BrokerID string `json:"broker_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// Broker-side order states reported by status polls.
const (
	BrokerStateOpen      = "OPEN"
	BrokerStateFilled    = "FILLED"
	BrokerStatePartial   = "PARTIAL"
	BrokerStateCancelled = "CANCELLED"
	BrokerStateRejected  = "REJECTED"
)

// OrderState is a broker-side view of a working order.
type OrderState struct {
	BrokerID  string  `json:"broker_id"`
	State     string  `json:"state"`
	FilledQty int     `json:"filled_qty"`
	AvgPrice  float64 `json:"avg_price"`
}
