package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"liqmon/config"
	"liqmon/internal/api"
	"liqmon/internal/channel"
	"liqmon/internal/metrics"
	"liqmon/internal/processor"
	"liqmon/internal/reader/binance"
	"liqmon/internal/reader/bybit"
	"liqmon/internal/writer"
	"liqmon/logger"
	"liqmon/paper"
	"liqmon/prices"
	liqsignal "liqmon/signal"
	"liqmon/store"
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

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Liqmon.Name,
		"version":     cfg.Liqmon.Version,
		"environment": env,
	}).Info("starting liqmon")
	if config.IsProductionLike(env) && cfg.Server.APIToken == "" {
		log.Warn("no API token configured; paper order endpoint is unauthenticated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.NormBuffer)
	defer channels.Close()

	if cfg.Metrics.ChannelSize {
		metrics.StartChannelSizeMetrics(ctx, channels, 10*time.Second)
	}

	st := store.New()
	engine := liqsignal.NewEngine(cfg.Signal.Window(), cfg.Watchlist.USDThreshold)
	priceFetcher := prices.NewFetcher(cfg.Prices.RequestsPerSecond, cfg.Prices.BurstSize, cfg.Prices.CacheTTL.Std())
	paperEngine := paper.NewEngine(cfg.Paper.APIKey, cfg.Paper.APISecret, cfg.Paper.Testnet, priceFetcher, st, cfg.Watchlist.Contains)
	log.WithFields(logger.Fields{"testnet": paperEngine.Testnet()}).Info("paper trading engine ready")

	liqProcessor := processor.NewLiquidationProcessor(cfg, channels.Liq, engine, st)

	var binanceReader *binance.Binance_LIQ_Reader
	if cfg.Source.Binance.Future.Liquidation.Enabled {
		binanceReader = binance.Binance_LIQ_NewReader(cfg, channels.Liq, cfg.Source.Binance.Future.Liquidation.Symbols)
	}
	var bybitReader *bybit.Bybit_LIQ_Reader
	if cfg.Source.Bybit.Future.Liquidation.Enabled {
		bybitReader = bybit.Bybit_LIQ_NewReader(cfg, channels.Liq, cfg.Source.Bybit.Future.Liquidation.Symbols)
	}

	var liqWriter *writer.LiquidationWriter
	if cfg.Storage.S3.Enabled {
		liqWriter, err = writer.NewLiquidationWriter(cfg, channels.Liq.Norm)
		if err != nil {
			log.WithError(err).Error("failed to create S3 writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	apiServer := api.NewServer(cfg, st, engine, priceFetcher, paperEngine)

	var wg sync.WaitGroup

	if binanceReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := binanceReader.Binance_LIQ_Start(ctx); err != nil {
				log.WithError(err).Warn("binance liquidation reader failed to start")
			}
		}()
	}
	if bybitReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bybitReader.Bybit_LIQ_Start(ctx); err != nil {
				log.WithError(err).Warn("bybit liquidation reader failed to start")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := liqProcessor.Start(ctx); err != nil {
			log.WithError(err).Warn("liquidation processor failed to start")
		}
	}()

	if liqWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("s3 writer failed to start")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Run(ctx); err != nil {
			log.WithError(err).Error("api server exited")
			cancel()
		}
	}()

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown")
	cancel()

	if liqWriter != nil {
		log.Info("stopping S3 writer")
		liqWriter.Stop()
	}

	log.Info("stopping liquidation processor")
	liqProcessor.Stop()

	if binanceReader != nil {
		log.Info("stopping binance liquidation reader")
		binanceReader.Binance_LIQ_Stop()
	}
	if bybitReader != nil {
		log.Info("stopping bybit liquidation reader")
		bybitReader.Bybit_LIQ_Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("liqmon stopped")
}
