package marketdata

import (
	"context"
	"math/rand"
	"sync"

	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/types"
)

// Static serves synthetic quotes for DRY_RUN mode. Prices random-walk
// around an anchor per ticker so stop and target crossings actually
// happen during a dry run.
type Static struct {
	mu      sync.Mutex
	rng     *rand.Rand
	anchors map[string]float64
}

var _ interfaces.MarketData = (*Static)(nil)

func NewStatic(seed int64) *Static {
	return &Static{
		rng:     rand.New(rand.NewSource(seed)),
		anchors: map[string]float64{},
	}
}

func (s *Static) Quote(ctx context.Context, ticker string) (types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.anchors[ticker]
	if !ok {
		price = 100 + s.rng.Float64()*900
	}
	price += (s.rng.Float64() - 0.5) * price * 0.004
	s.anchors[ticker] = price

	return types.Quote{
		Ticker: ticker,
		Price:  price,
		Spread: price * 0.0004,
		Volume: 1000 + s.rng.Float64()*100000,
	}, nil
}

// SetPrice pins the next quote for a ticker. Handy for demos.
func (s *Static) SetPrice(ticker string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors[ticker] = price
}
