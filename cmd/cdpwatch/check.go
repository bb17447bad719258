package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cdpwatch/internal/chain"
	"cdpwatch/internal/command"
	"cdpwatch/internal/config"
	"cdpwatch/internal/liquidation"
	"cdpwatch/internal/maker"
	"cdpwatch/internal/model"
)

func runCheck(cmd *cobra.Command, args []string) error {
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

	if err := cfg.Validate(); err != nil {
		return err
	}
	tub, _ := cfg.TubAddress()

	ids := make([]uint64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cdp id %q", arg)
		}
		ids = append(ids, id)
	}

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

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	feed, err := o.PriceFeed(callCtx)
	cancel()
	if err != nil {
		return err
	}

	rows := make([]command.StatusRow, 0, len(ids))
	for _, id := range ids {
		row := command.StatusRow{Entry: model.WatchEntry{PositionID: id}}
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		pos, err := o.Position(callCtx, id)
		cancel()
		if err != nil {
			logger.Warn("position unavailable", zap.Uint64("cdp_id", id), zap.Error(err))
			row.Err = err
		} else {
			row.Snapshot = liquidation.Calculate(pos, feed.Par)
		}
		rows = append(rows, row)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ETH/USD %s  par %s\n\n", liquidation.FormatPrice(feed.Reference), feed.Par.FloatString(4))
	fmt.Fprintln(cmd.OutOrStdout(), command.FormatStatus(rows))
	return nil
}
