package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradesim/cache"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/recon"
	"github.com/rustyeddy/tradesim/risk"
	"github.com/rustyeddy/tradesim/sim"
	"github.com/rustyeddy/tradesim/strategies"
)

// EnvPrefix prefixes environment overrides, e.g. TRADESIM_REDIS_ADDR.
const EnvPrefix = "TRADESIM"

// Config represents the complete configuration. It is loaded once and handed
// to component constructors by value.
type Config struct {
	Account    AccountConfig    `yaml:"account" mapstructure:"account"`
	Fees       ledger.Fees      `yaml:"fees" mapstructure:"fees"`
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Strategy   StrategyConfig   `yaml:"strategy" mapstructure:"strategy"`
	Journal    JournalConfig    `yaml:"journal" mapstructure:"journal"`
	Redis      cache.Options    `yaml:"redis" mapstructure:"redis"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Cash float64 `yaml:"cash" mapstructure:"cash"`

	// SettleT1 makes shares bought today unsellable until the next day.
	SettleT1 bool `yaml:"settle_t1" mapstructure:"settle_t1"`
}

type SimulationConfig struct {
	Policy      risk.Policy  `yaml:"policy" mapstructure:"policy"`
	Exits       sim.Exits    `yaml:"exits" mapstructure:"exits"`
	Slippage    sim.Slippage `yaml:"slippage" mapstructure:"slippage"`
	EntryJitter float64      `yaml:"entry_jitter" mapstructure:"entry_jitter"`
	Seed        int64        `yaml:"seed" mapstructure:"seed"`
}

// StrategyConfig names a registered strategy and its parameters.
type StrategyConfig struct {
	Name   string            `yaml:"name" mapstructure:"name"`
	Params strategies.Params `yaml:"params,omitempty" mapstructure:"params"`
}

type JournalConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

type ReconcileConfig struct {
	recon.Options `yaml:",inline" mapstructure:",squash"`

	// Interval between passes when running as a loop.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`

	// Dir receives a JSON log file when set.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Cash:     100_000,
			SettleT1: true,
		},
		Fees: ledger.Fees{
			CommissionRate: 0.0003,
			MinCommission:  5,
			StampDutyRate:  0.001,
		},
		Simulation: SimulationConfig{
			Policy: risk.Policy{
				LotSize:             100,
				MinTradeCost:        5_000,
				MaxOpen:             10,
				MaxPositionFraction: 0.2,
			},
			Exits: sim.Exits{
				StopLoss:   0.05,
				TakeProfit: 0.1,
				TieBreak:   sim.TakeProfitFirst,
			},
			Slippage: sim.Slippage{Model: sim.SlippageNone},
			Seed:     1,
		},
		Strategy: StrategyConfig{
			Name:   "ma-cross",
			Params: strategies.Params{"fast": 5, "slow": 20},
		},
		Journal: JournalConfig{DBPath: "./tradesim.sqlite"},
		Redis: cache.Options{
			Addr:   "localhost:6379",
			Prefix: "tradesim:",
		},
		Reconcile: ReconcileConfig{
			Options:  recon.DefaultOptions(),
			Interval: 5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadFromFile layers the file at path and TRADESIM_* environment variables
// over Default. An empty path loads defaults and the environment only.
func LoadFromFile(path string) (*Config, error) {
	def, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(def)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Cash <= 0 {
		return errors.New("account.cash must be positive")
	}
	if c.Fees.CommissionRate < 0 || c.Fees.MinCommission < 0 || c.Fees.StampDutyRate < 0 {
		return errors.New("fees must not be negative")
	}
	if err := c.SimOptions().Validate(); err != nil {
		return err
	}
	if c.Strategy.Name == "" {
		return errors.New("strategy.name is required")
	}
	if _, err := strategies.New(c.Strategy.Name, c.Strategy.Params); err != nil {
		return err
	}
	if c.Journal.DBPath == "" {
		return errors.New("journal.db_path is required")
	}
	if c.Reconcile.LockKey == "" {
		return errors.New("reconcile.lock_key is required")
	}
	if c.Reconcile.LockTTL <= 0 || c.Reconcile.PhaseTimeout <= 0 {
		return errors.New("reconcile.lock_ttl and reconcile.phase_timeout must be positive")
	}
	if c.Reconcile.Interval <= 0 {
		return errors.New("reconcile.interval must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (c *Config) SimOptions() sim.Options {
	return sim.Options{
		Policy:      c.Simulation.Policy,
		Exits:       c.Simulation.Exits,
		Slippage:    c.Simulation.Slippage,
		EntryJitter: c.Simulation.EntryJitter,
		Seed:        c.Simulation.Seed,
	}
}

func (c *Config) LedgerOptions() []ledger.Option {
	if c.Account.SettleT1 {
		return []ledger.Option{ledger.WithT1Settlement()}
	}
	return nil
}

func (c *Config) ReconOptions() recon.Options {
	opts := c.Reconcile.Options
	opts.Fees = c.Fees
	opts.SettleT1 = c.Account.SettleT1
	return opts
}
