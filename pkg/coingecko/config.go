package coingecko

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stablecap/pkg/confkit"
)

// Default tuning for the free (demo) CoinGecko tier.
const (
	DefaultBaseURL        = "https://api.coingecko.com/api/v3"
	DefaultCallsPerMinute = 30
	DefaultMaxAttempts    = 3
	DefaultCooldown       = 60 * time.Second
	DefaultBackoffBase    = time.Second
	DefaultBackoffCap     = 30 * time.Second
	DefaultHTTPTimeout    = 30 * time.Second

	// DefaultMaxWindowDays is the historical depth ceiling of the free tier.
	DefaultMaxWindowDays = 365
)

// Config describes the CoinGecko provider: endpoint, credentials, rate-limit
// and retry tuning, the fetch window, and the tracked asset list.
type Config struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	CallsPerMinute int    `yaml:"calls_per_minute"`
	MaxAttempts    int    `yaml:"max_attempts"`

	CooldownRaw    string        `yaml:"rate_limit_cooldown"`
	Cooldown       time.Duration `yaml:"-"`
	BackoffBaseRaw string        `yaml:"backoff_base"`
	BackoffBase    time.Duration `yaml:"-"`
	BackoffCapRaw  string        `yaml:"backoff_cap"`
	BackoffCap     time.Duration `yaml:"-"`
	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`

	WindowDays    int `yaml:"window_days"`
	MaxWindowDays int `yaml:"max_window_days"`

	Assets []Asset `yaml:"assets"`
}

// DefaultAssets is the tracked stablecoin set with the expected price band
// for each. The band is a sanity check, not a filter: out-of-band prices are
// stored and flagged.
func DefaultAssets() []Asset {
	return []Asset{
		{ID: "tether", Name: "Tether", Symbol: "USDT", MinPrice: 0.90, MaxPrice: 1.10},
		{ID: "usd-coin", Name: "USD Coin", Symbol: "USDC", MinPrice: 0.90, MaxPrice: 1.10},
		{ID: "dai", Name: "Dai", Symbol: "DAI", MinPrice: 0.90, MaxPrice: 1.10},
		{ID: "binance-usd", Name: "Binance USD", Symbol: "BUSD", MinPrice: 0.90, MaxPrice: 1.10},
		{ID: "frax", Name: "Frax", Symbol: "FRAX", MinPrice: 0.90, MaxPrice: 1.10},
		{ID: "true-usd", Name: "TrueUSD", Symbol: "TUSD", MinPrice: 0.90, MaxPrice: 1.10},
	}
}

// DefaultConfig returns a ready-to-use free-tier configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads provider configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open coingecko config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads provider configuration from the default project location.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/coingecko.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read coingecko config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal coingecko config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	c.BaseURL = strings.TrimSpace(os.ExpandEnv(c.BaseURL))
	c.APIKey = strings.TrimSpace(os.ExpandEnv(c.APIKey))
	if err := c.parseDurations(); err != nil {
		return err
	}
	c.applyDefaults()
	return nil
}

func (c *Config) parseDurations() error {
	parse := func(name, raw string, out *time.Duration) error {
		raw = strings.TrimSpace(os.ExpandEnv(raw))
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("coingecko config: invalid %s %q: %w", name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("coingecko config: %s must be positive, got %s", name, d)
		}
		*out = d
		return nil
	}
	if err := parse("rate_limit_cooldown", c.CooldownRaw, &c.Cooldown); err != nil {
		return err
	}
	if err := parse("backoff_base", c.BackoffBaseRaw, &c.BackoffBase); err != nil {
		return err
	}
	if err := parse("backoff_cap", c.BackoffCapRaw, &c.BackoffCap); err != nil {
		return err
	}
	return parse("http_timeout", c.HTTPTimeoutRaw, &c.HTTPTimeout)
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.CallsPerMinute <= 0 {
		c.CallsPerMinute = DefaultCallsPerMinute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = DefaultMaxWindowDays
	}
	if c.WindowDays <= 0 {
		c.WindowDays = c.MaxWindowDays
	}
	if len(c.Assets) == 0 {
		c.Assets = DefaultAssets()
	}
	for i := range c.Assets {
		if c.Assets[i].MinPrice == 0 && c.Assets[i].MaxPrice == 0 {
			c.Assets[i].MinPrice = 0.90
			c.Assets[i].MaxPrice = 1.10
		}
	}
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("coingecko config: backoff_cap %s below backoff_base %s", c.BackoffCap, c.BackoffBase)
	}
	for i, asset := range c.Assets {
		if strings.TrimSpace(asset.ID) == "" {
			return fmt.Errorf("coingecko config: asset %d missing id", i)
		}
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("coingecko config: asset %q missing symbol", asset.ID)
		}
		if asset.MinPrice > asset.MaxPrice {
			return fmt.Errorf("coingecko config: asset %q price band inverted", asset.ID)
		}
	}
	return nil
}

// RateInterval derives the minimum request spacing from the calls-per-minute
// ceiling, with a 5% margin so a full minute of calls stays under the limit
// (30/min comes out at 2.1s, matching the demo tier guidance).
func (c *Config) RateInterval() time.Duration {
	return time.Duration(float64(time.Minute) / float64(c.CallsPerMinute) * 1.05)
}
