package auditlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadDay(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	require.NoError(t, Append(Entry{
		Kind:     KindSignalDecision,
		SignalID: "sig-1",
		Ticker:   "AAPL",
		Outcome:  "accepted",
	}))
	require.NoError(t, Append(Entry{
		Kind:    KindOrderEvent,
		OrderID: "ord-1",
		Ticker:  "AAPL",
		Outcome: "STOPPED_OUT",
		Side:    "BUY",
		Qty:     66,
		Price:   149.00,
		PnL:     -102.30,
	}))

	entries, err := ReadDay(time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindSignalDecision, entries[0].Kind)
	assert.Equal(t, "sig-1", entries[0].SignalID)
	assert.NotEmpty(t, entries[0].Time)

	assert.Equal(t, KindOrderEvent, entries[1].Kind)
	assert.Equal(t, 66, entries[1].Qty)
	assert.InDelta(t, -102.30, entries[1].PnL, 1e-9)
}

func TestReadDayMissingFileIsEmpty(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	entries, err := ReadDay(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
