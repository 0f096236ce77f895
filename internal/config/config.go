// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config holds the static process configuration. Runtime trading settings
// (profit target, poll interval, base denomination) are read through the
// Provider so that edits to the config file take effect without a restart.
type Config struct {
	TransportURL    string `mapstructure:"transport_url"`
	PermalinkBase   string `mapstructure:"permalink_base"`
	SwapAPIURL      string `mapstructure:"swap_api_url"`
	MongoURI        string `mapstructure:"mongo_uri"`
	LogFile         string `mapstructure:"log_file"`
	DebugLogging    bool   `mapstructure:"debug_logging"`
	OutboundChannel string `mapstructure:"outbound_channel"`
	ExportDir       string `mapstructure:"export_dir"`
}

// Settings are the runtime trading parameters queried on demand by the
// engine. They are never cached indefinitely by the core.
type Settings struct {
	ProfitTargetPercent float64 `mapstructure:"profit_target_percent"`
	MonitorIntervalMs   int     `mapstructure:"monitor_interval_ms"`
	BaseMint            string  `mapstructure:"base_mint"`
	BaseSymbol          string  `mapstructure:"base_symbol"`
	BaseDecimals        uint8   `mapstructure:"base_decimals"`
	SlippageBps         int     `mapstructure:"slippage_bps"`
	BuyAmountBase       float64 `mapstructure:"buy_amount_base"`
}

const (
	DefaultMonitorIntervalMs = 60000
	DefaultSlippageBps       = 100
	DefaultBaseSymbol        = "USDC"
	DefaultBaseDecimals      = 6
)

// ErrMissingBaseMint is returned when an operation requires a configured
// base denomination mint and none is set.
var ErrMissingBaseMint = errors.New("no base denomination mint configured")

// Provider exposes the live runtime settings backed by viper.
type Provider struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// Load reads the configuration file, applies env overrides and validates
// the static part. The returned Provider keeps watching the file so that
// GetAll always reflects the current effective settings.
func Load(path string) (*Config, *Provider, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"monitor_interval_ms": DefaultMonitorIntervalMs,
		"slippage_bps":        DefaultSlippageBps,
		"base_symbol":         DefaultBaseSymbol,
		"base_decimals":       DefaultBaseDecimals,
		"log_file":            "signalbot.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SIGNALBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, nil, err
	}

	v.WatchConfig()

	return &cfg, &Provider{v: v}, nil
}

// GetAll returns the current runtime settings. Called on demand by the
// engine on every monitor pass and transition.
func (p *Provider) GetAll() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Settings{
		ProfitTargetPercent: p.v.GetFloat64("profit_target_percent"),
		MonitorIntervalMs:   p.v.GetInt("monitor_interval_ms"),
		BaseMint:            p.v.GetString("base_mint"),
		BaseSymbol:          p.v.GetString("base_symbol"),
		BaseDecimals:        uint8(p.v.GetUint("base_decimals")),
		SlippageBps:         p.v.GetInt("slippage_bps"),
		BuyAmountBase:       p.v.GetFloat64("buy_amount_base"),
	}
	if s.MonitorIntervalMs <= 0 {
		s.MonitorIntervalMs = DefaultMonitorIntervalMs
	}
	return s
}

// Set overrides a runtime setting. Used by tests and interactive tooling.
func (p *Provider) Set(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v.Set(key, value)
}

// NewStaticProvider builds a Provider over fixed values, without a config
// file behind it.
func NewStaticProvider(s Settings) *Provider {
	v := viper.New()
	v.Set("profit_target_percent", s.ProfitTargetPercent)
	v.Set("monitor_interval_ms", s.MonitorIntervalMs)
	v.Set("base_mint", s.BaseMint)
	v.Set("base_symbol", s.BaseSymbol)
	v.Set("base_decimals", uint(s.BaseDecimals))
	v.Set("slippage_bps", s.SlippageBps)
	v.Set("buy_amount_base", s.BuyAmountBase)
	return &Provider{v: v}
}

func validateConfig(cfg *Config) error {
	if cfg.TransportURL == "" {
		return errors.New("missing transport_url in configuration")
	}
	if err := validateURLWithCache(cfg.TransportURL, "ws"); err != nil {
		return errors.New("invalid transport URL protocol")
	}
	if cfg.SwapAPIURL == "" {
		return errors.New("missing swap_api_url in configuration")
	}
	if err := validateURLWithCache(cfg.SwapAPIURL, "http"); err != nil {
		return errors.New("invalid swap API URL protocol")
	}
	if cfg.MongoURI != "" {
		if err := validateURLWithCache(cfg.MongoURI, "mongodb"); err != nil {
			return errors.New("invalid mongo URI protocol")
		}
	}
	if cfg.OutboundChannel == "" {
		return errors.New("missing outbound_channel in configuration")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}
