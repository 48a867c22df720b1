package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"news-trading-bot/internal/api"
	"news-trading-bot/internal/broker/kite"
	"news-trading-bot/internal/broker/paper"
	"news-trading-bot/internal/brokerobs"
	"news-trading-bot/internal/intake"
	"news-trading-bot/internal/interfaces"
	"news-trading-bot/internal/journal"
	"news-trading-bot/internal/ledger"
	"news-trading-bot/internal/logger"
	"news-trading-bot/internal/marketdata"
	"news-trading-bot/internal/notify"
	"news-trading-bot/internal/orders"
	"news-trading-bot/internal/predictor"
	"news-trading-bot/internal/risk"
	"news-trading-bot/internal/scheduler"
	"news-trading-bot/internal/store"
)

// components holds the fully wired application graph.
type components struct {
	cfg       *store.Config
	journal   *journal.SQLiteJournal
	ledger    *ledger.Ledger
	manager   *orders.Manager
	intake    *intake.Intake
	scheduler *scheduler.Scheduler
	server    *api.Server
	notifier  interfaces.Notifier
}

func build(ctx context.Context, cfg *store.Config) (*components, error) {
	jrnl, err := journal.NewSQLite(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	led := ledger.New(cfg.Risk.StartingBalance, cfg.Risk.MaxTradesPerDay)

	restored, err := jrnl.LoadLatestSnapshot(ctx)
	if err != nil {
		jrnl.Close()
		return nil, fmt.Errorf("loading ledger snapshot: %w", err)
	}
	var lastReset time.Time
	if restored != nil {
		led.Restore(ledger.Snapshot{
			Balance:               restored.Balance,
			StartingBalance:       cfg.Risk.StartingBalance,
			PeakBalance:           restored.PeakBalance,
			DailyTradeCount:       restored.DailyTradeCount,
			DailyPnL:              restored.DailyPnL,
			ConsecutiveLosses:     restored.ConsecutiveLosses,
			CumulativeMaxDrawdown: restored.MaxDrawdown,
			LastResetDate:         restored.TakenAt,
		})
		lastReset = restored.TakenAt
		logger.Info(ctx, "Ledger restored from journal",
			"taken_at", restored.TakenAt,
			"balance", restored.Balance,
			"daily_trade_count", restored.DailyTradeCount,
			"consecutive_losses", restored.ConsecutiveLosses,
		)
	}

	brk, md, err := buildBroker(cfg)
	if err != nil {
		jrnl.Close()
		return nil, err
	}
	brk = brokerobs.Wrap(brk)

	notifier := buildNotifier(cfg)

	mgr := orders.New(orders.Config{
		MaxRetries:     cfg.Orders.MaxRetries,
		InitialBackoff: time.Duration(cfg.Orders.InitialBackoffMillis) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Orders.MaxBackoffMillis) * time.Millisecond,
		BrokerTimeout:  time.Duration(cfg.Orders.BrokerTimeoutSeconds) * time.Second,
		PollInterval:   time.Duration(cfg.Orders.PollMillis) * time.Millisecond,
		MaxSlippagePct: cfg.Orders.MaxSlippagePct,
	}, brk, md, led, jrnl, notifier)

	params := risk.Params{
		MaxTradesPerDay:      cfg.Risk.MaxTradesPerDay,
		MaxRiskPerTrade:      cfg.Risk.MaxRiskPerTrade,
		MaxDailyLossFraction: cfg.Risk.MaxDailyLossFraction,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		MaxPositionFraction:  cfg.Risk.MaxPositionFraction,
		MaxSpreadPct:         cfg.Risk.MaxSpreadPct,
		SessionOpenMinute:    cfg.SessionOpenMinute(),
		SessionCloseMinute:   cfg.SessionCloseMinute(),
		RestrictedMinutes:    cfg.Session.RestrictedMinutes,
		Location:             cfg.SessionLocation(),
	}

	in := intake.New(intake.Config{
		Universe:     cfg.Universe,
		DedupWindow:  time.Duration(cfg.Intake.DedupWindowSeconds) * time.Second,
		SignalExpiry: time.Duration(cfg.Intake.SignalExpirySeconds) * time.Second,
	}, params, led, md, jrnl, mgr, notifier)

	sched := scheduler.New(scheduler.Config{
		Universe:          cfg.Universe,
		ScanInterval:      time.Duration(cfg.Scheduler.ScanSeconds) * time.Second,
		Location:          cfg.SessionLocation(),
		SessionCloseMin:   cfg.SessionCloseMinute(),
		AuditRetentionDay: 7,
		LastReset:         lastReset,
	}, in, buildPredictor(cfg), led, mgr, notifier)

	srv := api.NewServer(cfg.Webhook.Addr, in, led, webhookSecret(cfg))

	return &components{
		cfg:       cfg,
		journal:   jrnl,
		ledger:    led,
		manager:   mgr,
		intake:    in,
		scheduler: sched,
		server:    srv,
		notifier:  notifier,
	}, nil
}

func buildBroker(cfg *store.Config) (interfaces.Broker, interfaces.MarketData, error) {
	if cfg.Mode == "LIVE" {
		apiKey := os.Getenv("KITE_API_KEY")
		accessToken := os.Getenv("KITE_ACCESS_TOKEN")
		if apiKey == "" || accessToken == "" {
			return nil, nil, fmt.Errorf("LIVE mode requires KITE_API_KEY and KITE_ACCESS_TOKEN")
		}
		kc := kite.New(apiKey, accessToken, cfg.Exchange)
		return kc, kc, nil
	}
	md := marketdata.NewStatic(time.Now().UnixNano())
	return paper.New(md), md, nil
}

func buildNotifier(cfg *store.Config) interfaces.Notifier {
	if cfg.Notify.Provider == "TELEGRAM" {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		chatID := os.Getenv("TELEGRAM_CHAT_ID")
		if token != "" && chatID != "" {
			return notify.NewTelegram(token, chatID)
		}
	}
	return notify.Noop{}
}

func buildPredictor(cfg *store.Config) interfaces.Predictor {
	// Selection seam for external prediction providers; only the no-op
	// provider ships today, so all signals arrive via the webhook.
	return predictor.Noop{}
}

func webhookSecret(cfg *store.Config) string {
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		return v
	}
	return cfg.Webhook.Secret
}
