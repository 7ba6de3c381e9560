package config

import (
	"fmt"
	"math"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DryRun bool `yaml:"dry_run"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Chain struct {
		RPCHTTP  string `yaml:"rpc_http"`
		WalletPK string `yaml:"wallet_pk"`
		GasLimit uint64 `yaml:"gas_limit"`
	} `yaml:"chain"`

	Venues struct {
		PSM        string `yaml:"psm"`
		Router     string `yaml:"router"`
		Pair       string `yaml:"pair"`
		Collateral string `yaml:"collateral_token"`
		Stablecoin string `yaml:"stablecoin_token"`
	} `yaml:"venues"`

	Trade struct {
		// MaxTradeAmount is in base units of the collateral token, given as a
		// decimal string so large values survive YAML round-trips.
		MaxTradeAmount      string  `yaml:"max_trade_amount"`
		MinProfitPercentage float64 `yaml:"min_profit_percentage"`
		SlippageTolerance   float64 `yaml:"slippage_tolerance"`
		CooldownSec         int     `yaml:"cooldown_sec"`
		PegUpperLimit       float64 `yaml:"peg_upper_limit"`
		PegLowerLimit       float64 `yaml:"peg_lower_limit"`
	} `yaml:"trade"`

	State struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"state"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Timings struct {
		CheckIntervalMs int `yaml:"check_interval_ms"`
	} `yaml:"timings"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = 400_000
	}
	if c.Trade.CooldownSec == 0 {
		c.Trade.CooldownSec = 300
	}
	if c.Trade.PegUpperLimit == 0 {
		c.Trade.PegUpperLimit = 1.01
	}
	if c.Trade.PegLowerLimit == 0 {
		c.Trade.PegLowerLimit = 0.99
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "keeper:checks"
	}
	if c.Timings.CheckIntervalMs == 0 {
		c.Timings.CheckIntervalMs = 15_000
	}
}

func validate(c *Config) error {
	if c.Chain.RPCHTTP == "" {
		return fmt.Errorf("chain.rpc_http is required")
	}
	for name, addr := range map[string]string{
		"venues.psm":              c.Venues.PSM,
		"venues.router":           c.Venues.Router,
		"venues.collateral_token": c.Venues.Collateral,
		"venues.stablecoin_token": c.Venues.Stablecoin,
	} {
		if addr == "" {
			return fmt.Errorf("%s address is required", name)
		}
	}
	if _, err := c.maxTrade(); err != nil {
		return err
	}
	if c.Trade.MinProfitPercentage < 0 {
		return fmt.Errorf("trade.min_profit_percentage must be >= 0")
	}
	if c.Trade.CooldownSec < 0 {
		return fmt.Errorf("trade.cooldown_sec must be >= 0")
	}
	if c.Trade.SlippageTolerance < 0 || c.Trade.SlippageTolerance >= 1 {
		return fmt.Errorf("trade.slippage_tolerance must be in [0,1)")
	}
	if !(c.Trade.PegLowerLimit < 1.0 && 1.0 < c.Trade.PegUpperLimit) {
		return fmt.Errorf("peg band must straddle 1.0 (lower=%v upper=%v)",
			c.Trade.PegLowerLimit, c.Trade.PegUpperLimit)
	}
	return nil
}

func (c *Config) maxTrade() (*big.Int, error) {
	if c.Trade.MaxTradeAmount == "" {
		return nil, fmt.Errorf("trade.max_trade_amount is required")
	}
	v, ok := new(big.Int).SetString(c.Trade.MaxTradeAmount, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("trade.max_trade_amount must be a positive integer, got %q", c.Trade.MaxTradeAmount)
	}
	return v, nil
}

// MaxTrade returns the trade-size cap in collateral base units. Config is
// validated at Load, so parsing cannot fail here.
func (c *Config) MaxTrade() *big.Int {
	v, _ := c.maxTrade()
	return v
}

// SlippageBps converts the configured fractional tolerance to basis points so
// the min-out floor can be computed in integer arithmetic.
func (c *Config) SlippageBps() int64 {
	return int64(math.Round(c.Trade.SlippageTolerance * 10_000))
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trade.CooldownSec) * time.Second
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Timings.CheckIntervalMs) * time.Millisecond
}
