// Package config loads and validates the startup configuration. Values are
// read once; nothing here is reloaded while the engine runs.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/voitrader/engine"
	"github.com/rustyeddy/voitrader/ledger"
	"github.com/rustyeddy/voitrader/strategies"
)

// Config represents the complete engine configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Feed    FeedConfig    `json:"feed" yaml:"feed"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type AccountConfig struct {
	Symbol      string  `json:"symbol" yaml:"symbol"`
	InitialCash float64 `json:"initial_cash" yaml:"initial_cash"`
}

// TradingConfig holds the entry and exit thresholds. SpreadThreshold is in
// percent; TakeProfit, StopLoss and FeeRate are fractions.
type TradingConfig struct {
	Strategy               string  `json:"strategy" yaml:"strategy"`
	TradeSize              float64 `json:"trade_size" yaml:"trade_size"`
	SpreadThreshold        float64 `json:"spread_threshold" yaml:"spread_threshold"`
	TakeProfit             float64 `json:"take_profit" yaml:"take_profit"`
	StopLoss               float64 `json:"stop_loss" yaml:"stop_loss"`
	FeeRate                float64 `json:"fee_rate" yaml:"fee_rate"`
	OIRThreshold           float64 `json:"oir_threshold" yaml:"oir_threshold"`
	MPBThreshold           float64 `json:"mpb_threshold" yaml:"mpb_threshold"`
	RejectInsufficientCash bool    `json:"reject_insufficient_cash" yaml:"reject_insufficient_cash"`
	UseLastTrade           bool    `json:"use_last_trade" yaml:"use_last_trade"`
}

// FeedConfig selects where snapshots come from.
type FeedConfig struct {
	Type       string `json:"type" yaml:"type"` // "replay" or "websocket"
	Path       string `json:"path" yaml:"path"`
	URL        string `json:"url" yaml:"url"`
	Interval   string `json:"interval" yaml:"interval"`       // e.g. "1s"
	StaleAfter string `json:"stale_after" yaml:"stale_after"` // e.g. "5s"
	Buffer     int    `json:"buffer" yaml:"buffer"`
	Reconnect  bool   `json:"reconnect" yaml:"reconnect"`
}

// IntervalDuration parses Interval; empty means no pacing.
func (f FeedConfig) IntervalDuration() (time.Duration, error) {
	return parseDuration(f.Interval)
}

// StaleDuration parses StaleAfter; empty disables staleness detection.
func (f FeedConfig) StaleDuration() (time.Duration, error) {
	return parseDuration(f.StaleAfter)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type           string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile     string `json:"trades_file" yaml:"trades_file"`
	ValuationsFile string `json:"valuations_file" yaml:"valuations_file"`
	DBPath         string `json:"db_path" yaml:"db_path"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// MetricsConfig: an empty Addr disables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// and validates it. Keys absent from the file keep their Default values;
// keys present with an empty value stay empty.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
// Every field is written, empty ones included.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func unit(x float64) bool {
	return finite(x) && x >= 0 && x <= 1
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Account.Symbol) == "" {
		return fmt.Errorf("account.symbol is required")
	}
	if !finite(c.Account.InitialCash) || c.Account.InitialCash < 0 {
		return fmt.Errorf("account.initial_cash must be a non-negative number")
	}

	t := c.Trading
	if !finite(t.TradeSize) || t.TradeSize <= 0 {
		return fmt.Errorf("trading.trade_size must be positive")
	}
	ranged := []struct {
		name string
		v    float64
	}{
		{"spread_threshold", t.SpreadThreshold},
		{"take_profit", t.TakeProfit},
		{"stop_loss", t.StopLoss},
		{"fee_rate", t.FeeRate},
		{"oir_threshold", t.OIRThreshold},
	}
	for _, r := range ranged {
		if !unit(r.v) {
			return fmt.Errorf("trading.%s must be between 0 and 1", r.name)
		}
	}
	if !finite(t.MPBThreshold) {
		return fmt.Errorf("trading.mpb_threshold must be a finite number")
	}
	if _, err := strategies.ByName(t.Strategy, c.StrategyParams()); err != nil {
		return fmt.Errorf("trading.strategy: %w", err)
	}

	switch c.Feed.Type {
	case "replay":
		if c.Feed.Path == "" {
			return fmt.Errorf("feed.path required for replay type")
		}
	case "websocket":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url required for websocket type")
		}
	default:
		return fmt.Errorf("feed.type must be 'replay' or 'websocket'")
	}
	if d, err := c.Feed.IntervalDuration(); err != nil || d < 0 {
		return fmt.Errorf("feed.interval must be a non-negative duration")
	}
	if d, err := c.Feed.StaleDuration(); err != nil || d < 0 {
		return fmt.Errorf("feed.stale_after must be a non-negative duration")
	}
	if c.Feed.Buffer < 0 {
		return fmt.Errorf("feed.buffer must not be negative")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.ValuationsFile == "" {
			return fmt.Errorf("journal trades_file and valuations_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Environment variables that override file values.
const (
	EnvSymbol      = "VOITRADER_SYMBOL"
	EnvInitialCash = "VOITRADER_INITIAL_CASH"
	EnvLogLevel    = "VOITRADER_LOG_LEVEL"
	EnvFeedURL     = "VOITRADER_FEED_URL"
	EnvMetricsAddr = "VOITRADER_METRICS_ADDR"
)

// ApplyEnv overlays the VOITRADER_* environment variables onto c. Call
// Validate afterwards.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvSymbol); ok && v != "" {
		c.Account.Symbol = v
	}
	if v, ok := os.LookupEnv(EnvInitialCash); ok && v != "" {
		cash, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInitialCash, err)
		}
		c.Account.InitialCash = cash
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvFeedURL); ok && v != "" {
		c.Feed.URL = v
		c.Feed.Type = "websocket"
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok {
		c.Metrics.Addr = v
	}
	return nil
}

// LedgerConfig is the ledger's view of the configuration.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		Symbol:                 c.Account.Symbol,
		InitialCash:            c.Account.InitialCash,
		TradeSize:              c.Trading.TradeSize,
		FeeRate:                c.Trading.FeeRate,
		RejectInsufficientCash: c.Trading.RejectInsufficientCash,
	}
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		TakeProfit:   c.Trading.TakeProfit,
		StopLoss:     c.Trading.StopLoss,
		FeeRate:      c.Trading.FeeRate,
		TradeSize:    c.Trading.TradeSize,
		UseLastTrade: c.Trading.UseLastTrade,
	}
}

func (c *Config) StrategyParams() strategies.Params {
	return strategies.Params{
		SpreadThreshold: c.Trading.SpreadThreshold,
		OIRThreshold:    c.Trading.OIRThreshold,
		MPBThreshold:    c.Trading.MPBThreshold,
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	p := strategies.DefaultParams()
	return &Config{
		Account: AccountConfig{
			Symbol:      "BTC/USDT",
			InitialCash: 1000,
		},
		Trading: TradingConfig{
			Strategy:        "imbalance",
			TradeSize:       0.001,
			SpreadThreshold: p.SpreadThreshold,
			TakeProfit:      0.01,
			StopLoss:        0.02,
			FeeRate:         0.005,
			OIRThreshold:    p.OIRThreshold,
			MPBThreshold:    p.MPBThreshold,
		},
		Feed: FeedConfig{
			Type:       "replay",
			Path:       "./testdata/btcusdt_book.csv",
			Interval:   "1s",
			StaleAfter: "5s",
			Buffer:     64,
		},
		Journal: JournalConfig{
			Type:           "csv",
			TradesFile:     "./trades.csv",
			ValuationsFile: "./valuations.csv",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
