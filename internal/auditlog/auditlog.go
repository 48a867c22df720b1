package auditlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

// Audit record kinds.
const (
	KindSignalDecision = "signal_decision"
	KindOrderEvent     = "order_event"
)

// Entry is one append-only audit record. Every intake decision and
// every order terminal state produces exactly one.
type Entry struct {
	Time     string         `json:"time"`
	Kind     string         `json:"kind"`
	SignalID string         `json:"signal_id,omitempty"`
	OrderID  string         `json:"order_id,omitempty"`
	Ticker   string         `json:"ticker"`
	Outcome  string         `json:"outcome"`
	Reason   string         `json:"reason,omitempty"`
	Side     string         `json:"side,omitempty"`
	Qty      int            `json:"qty,omitempty"`
	Price    float64        `json:"price,omitempty"`
	PnL      float64        `json:"pnl,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), "audit", t.UTC().Format("2006-01-02")+".jsonl")
}

// Append writes one audit record. Records are never mutated.
func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().UTC()
	e.Time = now.Format(time.RFC3339)
	p := dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(e)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadDay returns all audit entries for the given day.
func ReadDay(t time.Time) ([]Entry, error) {
	mu.Lock()
	defer mu.Unlock()
	f, err := os.Open(dailyFilepath(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CompressOlder gzips audit files older than retentionDays.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(logDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			return os.Remove(p)
		}

		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()

		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		_, copyErr := io.Copy(gw, in)
		_ = gw.Close()
		_ = out.Close()
		if copyErr == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}
