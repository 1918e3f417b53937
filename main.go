package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridbot/api"
	"gridbot/broker"
	"gridbot/config"
	"gridbot/grid"
	"gridbot/logger"
	"gridbot/notify"
	"gridbot/orderid"
	"gridbot/risk"
	"gridbot/store"
	"gridbot/strategy"
	"gridbot/trader"
)

func main() {
	// Load environment variables from .env file if present (for local/dev runs)
	// In Docker Compose, variables are injected by the runtime and this is harmless.
	_ = godotenv.Load()

	config.Init()
	cfg := config.Get()
	logger.Init(cfg.LogLevel)

	logger.Info("╔══════════════════════════════════════════╗")
	logger.Info("║        🤖 Grid trading agent             ║")
	logger.Info("╚══════════════════════════════════════════╝")

	logger.Infof("📋 Opening parameter database: %s", cfg.DBPath)
	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ Failed to open database: %v", err)
	}
	defer st.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warnf("⚠️  Telegram notifier unavailable: %v", err)
		} else {
			notifier = tg
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gateway broker.Broker
	switch cfg.Broker {
	case "binance":
		bnc := broker.NewBinance(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
		if err := bnc.StartUserStream(ctx); err != nil {
			logger.Fatalf("❌ Failed to start Binance user stream: %v", err)
		}
		gateway = bnc
		logger.Infof("✅ Using Binance futures (client id %d)", cfg.ClientID)
	case "paper":
		gateway = broker.NewPaper()
		logger.Infof("📄 Using paper broker (client id %d)", cfg.ClientID)
	default:
		logger.Fatalf("❌ Unknown broker %q", cfg.Broker)
	}

	codec := orderid.NewCodec(cfg.ClientID)
	tracker := strategy.NewTracker()
	ledger := risk.NewLedger(risk.Limits{
		MaxOrder:          cfg.MaxOrderNominal,
		MaxContract:       cfg.MaxContractNominal,
		MaxGlobal:         cfg.MaxGlobalNominal,
		MaxStrategy:       cfg.MaxStrategyNominal,
		WarningPercentage: cfg.WarningPercentage,
	}, gateway, notifier)
	planner := grid.NewPlanner(gateway, codec, ledger, tracker, notifier, grid.Config{
		ConfirmationMaxAge: time.Duration(cfg.ConfirmationMaxAgeSeconds) * time.Second,
		CancelTimeout:      time.Duration(cfg.CancelTimeoutSeconds) * time.Second,
	})
	agent := trader.NewAgent(gateway, st, tracker, planner, notifier,
		time.Duration(cfg.RefreshSeconds)*time.Second)

	apiServer := api.NewServer(ledger, tracker, st, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Errorf("❌ API server error: %v", err)
		}
	}()

	go agent.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("📛 Shutdown signal received, stopping...")
	cancel()
	logger.Info("✅ Agent stopped, resting grid orders stay working at the broker")
}
