package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cdpwatch/internal/watchlist"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// DefaultTub is the Sai Tub contract on Ethereum mainnet.
const DefaultTub = "0x448a5065aeBB8E423F0896E6c5D525C040f59af3"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	Tub              string
	TelegramToken    string
	Store            string
	StorePath        string
	PgDSN            string
	SQLitePath       string
	Interval         time.Duration
	CallTimeout      time.Duration
	Workers          int
	DefaultThreshold string
	RetainOnFailure  bool
	Journal          string
	JournalEnabled   bool
	MetricsAddr      string
	LogLevel         string
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CDPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("tub", DefaultTub)
	v.SetDefault("store", StoreFile)
	v.SetDefault("store-path", "./data/watchlist.json")
	v.SetDefault("sqlite-path", "./data/watchlist.db")
	v.SetDefault("interval", 60*time.Second)
	v.SetDefault("call-timeout", 15*time.Second)
	v.SetDefault("workers", 1)
	v.SetDefault("default-threshold", "200")
	v.SetDefault("retain-on-failure", false)
	v.SetDefault("journal", "./data/alerts.jsonl")
	v.SetDefault("journal-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		Tub:              v.GetString("tub"),
		TelegramToken:    v.GetString("telegram-token"),
		Store:            strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		StorePath:        v.GetString("store-path"),
		PgDSN:            v.GetString("pg-dsn"),
		SQLitePath:       v.GetString("sqlite-path"),
		Interval:         v.GetDuration("interval"),
		CallTimeout:      v.GetDuration("call-timeout"),
		Workers:          v.GetInt("workers"),
		DefaultThreshold: v.GetString("default-threshold"),
		RetainOnFailure:  v.GetBool("retain-on-failure"),
		Journal:          v.GetString("journal"),
		JournalEnabled:   v.GetBool("journal-enabled"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings shared by every command.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if _, err := c.TubAddress(); err != nil {
		return err
	}
	switch c.Store {
	case StoreFile:
		if c.StorePath == "" {
			return fmt.Errorf("store-path is required for the file store")
		}
	case StorePostgres:
		if c.PgDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreFile, StorePostgres, StoreSQLite)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call-timeout must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if _, err := c.Threshold(); err != nil {
		return err
	}
	if c.JournalEnabled && c.Journal == "" {
		return fmt.Errorf("journal path is required when the journal is enabled")
	}
	return nil
}

// ValidateRun additionally checks what the long-running bot needs.
func (c Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("telegram-token is required")
	}
	return nil
}

// TubAddress parses the tub contract address.
func (c Config) TubAddress() (common.Address, error) {
	input := strings.TrimSpace(c.Tub)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid tub address: %q", c.Tub)
	}
	return common.HexToAddress(input), nil
}

// Threshold parses the default threshold percent into a ratio.
func (c Config) Threshold() (decimal.Decimal, error) {
	threshold, err := watchlist.ParsePercent(c.DefaultThreshold)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid default-threshold: %w", err)
	}
	return threshold, nil
}
