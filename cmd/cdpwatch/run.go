package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cdpwatch/internal/bot"
	"cdpwatch/internal/chain"
	"cdpwatch/internal/command"
	"cdpwatch/internal/config"
	"cdpwatch/internal/maker"
	"cdpwatch/internal/monitor"
	"cdpwatch/internal/notify"
	"cdpwatch/internal/storage"
)

func runWatcher(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateRun(); err != nil {
		return err
	}
	tub, _ := cfg.TubAddress()
	threshold, _ := cfg.Threshold()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()
	logChain(ctx, chainClient, logger)

	o, err := maker.NewOracle(ctx, chainClient, tub, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sendAPI, err := notify.NewTelegramAPI(cfg.TelegramToken, tgbotapi.APIEndpoint, cfg.CallTimeout)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	pollAPI, err := notify.NewTelegramAPI(cfg.TelegramToken, tgbotapi.APIEndpoint, bot.PollTimeout+cfg.CallTimeout)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	logger.Info("telegram authorized", zap.String("bot", sendAPI.Self.UserName))

	dispatcher := notify.NewDispatcher(notify.NewTelegramSink(sendAPI), logger)

	var journal storage.Journal
	if cfg.JournalEnabled {
		journal = storage.NewJsonlJournal(cfg.Journal)
	}

	loop := monitor.NewLoop(monitor.Config{
		Interval:        cfg.Interval,
		CallTimeout:     cfg.CallTimeout,
		Workers:         cfg.Workers,
		RetainOnFailure: cfg.RetainOnFailure,
	}, o, store, dispatcher, journal, logger)

	service := command.NewService(store, o, threshold, cfg.CallTimeout, logger)
	commands := bot.New(pollAPI, service, dispatcher, logger)

	logger.Info("cdpwatch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("tub", tub.Hex()),
		zap.String("store", cfg.Store),
		zap.Duration("interval", cfg.Interval),
		zap.String("default_threshold_pct", cfg.DefaultThreshold),
		zap.Bool("journal_enabled", cfg.JournalEnabled),
		zap.String("journal", cfg.Journal),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return commands.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func logChain(ctx context.Context, client *chain.Client, logger *zap.Logger) {
	chainID, err := client.GetChainID(ctx)
	if err != nil {
		logger.Warn("chain id unavailable", zap.Error(err))
		return
	}
	head, err := client.LatestBlockNumber(ctx)
	if err != nil {
		logger.Warn("latest block unavailable", zap.Error(err))
		return
	}
	logger.Info("rpc connected", zap.String("chain_id", chainID.String()), zap.Uint64("head", head))
}
