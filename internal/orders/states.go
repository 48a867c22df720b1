package orders

import "news-trading-bot/internal/types"

// transitions is the order state machine. Any non-terminal state may
// additionally move to FAILED once the retry budget is exhausted or a
// fatal broker error occurs.
var transitions = map[string][]string{
	types.OrderPending:         {types.OrderSubmitted, types.OrderCancelled},
	types.OrderSubmitted:       {types.OrderFilled, types.OrderPartiallyFilled, types.OrderCancelled},
	types.OrderPartiallyFilled: {types.OrderFilled, types.OrderStoppedOut, types.OrderTargetHit, types.OrderManuallyClosed},
	types.OrderFilled:          {types.OrderStoppedOut, types.OrderTargetHit, types.OrderManuallyClosed},
}

// Terminal reports whether no further transition can occur.
func Terminal(status string) bool {
	switch status {
	case types.OrderStoppedOut, types.OrderTargetHit, types.OrderManuallyClosed,
		types.OrderCancelled, types.OrderFailed:
		return true
	}
	return false
}

func canTransition(from, to string) bool {
	if to == types.OrderFailed {
		return !Terminal(from)
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
