package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cdpwatch/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "cdpwatch",
		Short:        "Telegram alerts for undercollateralized Maker CDPs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return config.LoadDotEnv(envFile)
		},
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the command bot and the monitoring loop",
		RunE:  runWatcher,
	}

	addChainFlags(runCmd)
	runCmd.Flags().String("telegram-token", "", "Telegram bot API token")
	runCmd.Flags().String("store", config.StoreFile, "watchlist store (file, postgres, sqlite)")
	runCmd.Flags().String("store-path", "./data/watchlist.json", "file store path")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("sqlite-path", "./data/watchlist.db", "SQLite database path")
	runCmd.Flags().Duration("interval", 60*time.Second, "time between monitoring cycles")
	runCmd.Flags().Int("workers", 1, "entries evaluated in parallel per cycle")
	runCmd.Flags().String("default-threshold", "200", "threshold percent used when /watch omits one")
	runCmd.Flags().Bool("retain-on-failure", false, "keep entries whose alert could not be delivered")
	runCmd.Flags().String("journal", "./data/alerts.jsonl", "alert journal JSONL path")
	runCmd.Flags().Bool("journal-enabled", true, "write the alert journal")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics (empty disables)")

	root.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check <cdp_id>...",
		Short: "Print ratio and liquidation price of CDPs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}

	addChainFlags(checkCmd)

	root.AddCommand(checkCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().String("tub", config.DefaultTub, "Sai Tub contract address")
	cmd.Flags().Duration("call-timeout", 15*time.Second, "timeout of a single chain call")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
