package eod

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"news-trading-bot/internal/auditlog"
	"news-trading-bot/internal/types"
)

// Summary aggregates one trading day from the audit trail.
type Summary struct {
	Day         string
	Trades      int
	Wins        int
	Losses      int
	NetPnL      float64
	Accepted    int
	Rejected    int
	Rejections  map[string]int
	EndBalance  float64
	MaxDrawdown float64
}

// Build reads the day's audit entries and folds them into a summary.
// Only traded exits count toward win/loss; cancelled and failed orders
// appear in the trade rows but not the streak math.
func Build(day time.Time, endBalance, maxDrawdown float64) (Summary, error) {
	entries, err := auditlog.ReadDay(day)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Day:         day.UTC().Format("2006-01-02"),
		Rejections:  map[string]int{},
		EndBalance:  endBalance,
		MaxDrawdown: maxDrawdown,
	}
	for _, e := range entries {
		switch e.Kind {
		case auditlog.KindSignalDecision:
			if e.Outcome == types.SubmitAccepted {
				s.Accepted++
			} else {
				s.Rejected++
				if e.Reason != "" {
					s.Rejections[e.Reason]++
				}
			}
		case auditlog.KindOrderEvent:
			s.Trades++
			if e.Qty == 0 {
				continue
			}
			s.NetPnL += e.PnL
			if e.PnL >= 0 {
				s.Wins++
			} else {
				s.Losses++
			}
		}
	}
	return s, nil
}

// WriteCSV writes the day's trade rows plus a totals row to
// logs/eod/<day>.csv (TRADER_LOG_DIR honored).
func WriteCSV(day time.Time, s Summary) (string, error) {
	entries, err := auditlog.ReadDay(day)
	if err != nil {
		return "", err
	}

	dir := "logs"
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		dir = v
	}
	path := filepath.Join(dir, "eod", s.Day+".csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"time", "ticker", "side", "qty", "exit_price", "outcome", "pnl"})
	for _, e := range entries {
		if e.Kind != auditlog.KindOrderEvent {
			continue
		}
		_ = w.Write([]string{
			e.Time,
			e.Ticker,
			e.Side,
			strconv.Itoa(e.Qty),
			fmt.Sprintf("%.2f", e.Price),
			e.Outcome,
			fmt.Sprintf("%.2f", e.PnL),
		})
	}
	_ = w.Write([]string{
		"TOTAL", "", "",
		strconv.Itoa(s.Trades),
		"",
		fmt.Sprintf("balance=%.2f", s.EndBalance),
		fmt.Sprintf("%.2f", s.NetPnL),
	})
	w.Flush()
	return path, w.Error()
}

// Digest renders a one-line human summary for notifications.
func (s Summary) Digest() string {
	return fmt.Sprintf("EOD %s: %d trades (%dW/%dL), net %.2f, balance %.2f, max DD %.2f%%, signals %d accepted / %d rejected",
		s.Day, s.Trades, s.Wins, s.Losses, s.NetPnL, s.EndBalance, s.MaxDrawdown*100, s.Accepted, s.Rejected)
}
