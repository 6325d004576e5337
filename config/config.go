// Package config loads bot configuration from a YAML file with environment
// overrides.
package config

import (
	"math/big"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RPC struct {
		URL         string `yaml:"url"`
		PrivateKey  string `yaml:"private_key"`
		MaxGasPrice string `yaml:"max_gas_price"`
	} `yaml:"rpc"`

	Liquidation struct {
		Mode                string `yaml:"mode"`
		HealthFactorBps     int64  `yaml:"health_factor_bps"`
		SlippageBps         int64  `yaml:"slippage_bps"`
		Optimistic          bool   `yaml:"optimistic"`
		PartialFallback     bool   `yaml:"partial_fallback"`
		Concurrency         int    `yaml:"concurrency"`
		OracleNeedsUpdates  bool   `yaml:"oracle_needs_updates"`
		BotMinHealthFactor  int64  `yaml:"bot_min_health_factor"`
		OptimalHealthFactor int64  `yaml:"optimal_health_factor"`
	} `yaml:"liquidation"`

	Contracts struct {
		Multicall     string `yaml:"multicall"`
		Deployer      string `yaml:"deployer"`
		BotList       string `yaml:"bot_list"`
		DeleverageBot string `yaml:"deleverage_bot"`
		// Per-template liquidator address overrides keyed by logical name.
		Liquidators map[string]string `yaml:"liquidators"`
		// Per-template init code artifact file paths.
		Artifacts map[string]string `yaml:"artifacts"`
	} `yaml:"contracts"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	Schedule struct {
		ScanCron string `yaml:"scan_cron"`
	} `yaml:"schedule"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read config")
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPC.URL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.RPC.PrivateKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("LIQUIDATION_MODE"); v != "" {
		cfg.Liquidation.Mode = v
	}

	if cfg.Liquidation.Mode == "" {
		cfg.Liquidation.Mode = "full"
	}
	if cfg.Schedule.ScanCron == "" {
		cfg.Schedule.ScanCron = "@every 12s"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/liquidator.db"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return errors.New("rpc.url is required")
	}
	if c.RPC.PrivateKey == "" {
		return errors.New("rpc.private_key is required")
	}
	if c.Contracts.Multicall == "" {
		return errors.New("contracts.multicall is required")
	}
	if c.RPC.MaxGasPrice != "" {
		if _, ok := new(big.Int).SetString(c.RPC.MaxGasPrice, 10); !ok {
			return errors.Errorf("rpc.max_gas_price %q is not a base-10 integer", c.RPC.MaxGasPrice)
		}
	}
	if !c.Liquidation.Optimistic && c.Liquidation.Mode == "deleverage" {
		return errors.New("deleverage mode requires optimistic: it impersonates account owners")
	}
	return nil
}
