package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"backpackflow/config"
	"backpackflow/internal/channel"
	"backpackflow/internal/rest"
	"backpackflow/internal/sign"
	"backpackflow/internal/symbols"
	"backpackflow/logger"
	"backpackflow/models"
	readerbp "backpackflow/reader/backpack"
	tradingbp "backpackflow/trading/backpack"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Connector.Name,
		"version":     cfg.Connector.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting backpackflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	signer, err := sign.NewSigner(sign.Credentials{
		PrivateKey: cfg.Exchange.PrivateKey,
		PublicKey:  cfg.Exchange.PublicKey,
		BaseURL:    cfg.Exchange.RestURL,
	})
	if err != nil {
		log.WithError(err).Error("invalid exchange credentials")
		os.Exit(1)
	}

	channels := channel.NewChannels(cfg.Channels.TickBuffer, cfg.Channels.StateBuffer)
	gateway := rest.NewGateway(signer, cfg.Rest.Timeout, cfg.Rest.RequestsPerSecond, cfg.Rest.BurstSize)

	markets, err := readerbp.FetchMarkets(ctx, gateway)
	if err != nil {
		log.WithError(err).Error("failed to fetch markets")
		os.Exit(1)
	}

	var exchangeSymbols []string
	if len(cfg.Stream.Symbols) > 0 {
		for _, s := range cfg.Stream.Symbols {
			exchangeSymbols = append(exchangeSymbols, symbols.ToExchange(s))
		}
	} else {
		exchangeSymbols = readerbp.PerpSymbols(markets)
	}
	log.WithFields(logger.Fields{"markets": len(markets), "symbols": len(exchangeSymbols)}).Info("market discovery complete")

	intervals := readerbp.NewIntervalTable(cfg.Funding.DefaultHours)
	tracker := readerbp.NewFundingTracker(gateway, intervals, exchangeSymbols, cfg.Funding.RefreshInterval)

	chunks := config.ChunkSymbols(exchangeSymbols, cfg.Stream.ChunkSize)
	streams := make([]*readerbp.MarketStream, 0, len(chunks))
	for i, chunk := range chunks {
		streams = append(streams, readerbp.NewMarketStream(
			i, cfg.Exchange.Name, cfg.Exchange.WsPublicURL, chunk, intervals, channels, cfg.Stream.ReconnectDelay,
		))
	}

	client := tradingbp.NewTradingClient(gateway, cfg.Exchange.Name, markets)

	// The embedding engine feeds this channel; the standalone binary keeps
	// it open but idle.
	commands := make(chan models.TradingCommand, cfg.Channels.StateBuffer)
	manager := tradingbp.NewTradingManager(client, channels, commands, cfg.Account.PollInterval)
	accountStream := tradingbp.NewAccountStream(signer, cfg.Exchange.WsPrivateURL, cfg.Exchange.Name, channels, cfg.Account.ReconnectDelay)

	if err := tracker.Start(ctx); err != nil {
		log.WithError(err).Warn("funding tracker failed to start")
	}
	for _, stream := range streams {
		if err := stream.Start(ctx); err != nil {
			log.WithError(err).Warn("market stream failed to start")
		}
	}
	if err := manager.Start(ctx); err != nil {
		log.WithError(err).Warn("trading manager failed to start")
	}
	if err := accountStream.Start(ctx); err != nil {
		log.WithError(err).Warn("account stream failed to start")
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				channels.LogStats()
			}
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	accountStream.Stop()
	manager.Stop()
	for _, stream := range streams {
		stream.Stop()
	}
	tracker.Stop()
	channels.LogStats()

	log.Info("shutdown complete")
}
