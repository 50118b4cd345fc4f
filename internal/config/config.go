// Package config defines all configuration for the gift monitor.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via GIFT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"giftwatch/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Marketplaces MarketplacesConfig `mapstructure:"marketplaces"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Enrich       EnrichConfig       `mapstructure:"enrich"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Users        UsersConfig        `mapstructure:"users"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	API          APIServerConfig    `mapstructure:"api"`
}

// MarketplaceConfig holds the connection settings for one venue.
// A venue with an empty auth token is considered unavailable and its
// poller never starts.
type MarketplaceConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Auth         string        `mapstructure:"auth"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PageLimit    int           `mapstructure:"page_limit"`
}

// MarketplacesConfig groups the per-venue settings.
type MarketplacesConfig struct {
	Portals MarketplaceConfig `mapstructure:"portals"`
	Tonnel  MarketplaceConfig `mapstructure:"tonnel"`
	MRKT    MarketplaceConfig `mapstructure:"mrkt"`
	GetGems MarketplaceConfig `mapstructure:"getgems"`
}

// ByMarketplace returns the config block for the given venue.
func (m *MarketplacesConfig) ByMarketplace(mp types.Marketplace) MarketplaceConfig {
	switch mp {
	case types.Portals:
		return m.Portals
	case types.Tonnel:
		return m.Tonnel
	case types.MRKT:
		return m.MRKT
	case types.GetGems:
		return m.GetGems
	}
	return MarketplaceConfig{}
}

// MonitorConfig tunes the polling supervisor.
//
//   - SeenCap: per-marketplace dedup memory; oldest IDs are evicted beyond it.
//   - TonnelMinInterval: process-wide floor between any two Tonnel requests.
type MonitorConfig struct {
	SeenCap           int           `mapstructure:"seen_cap"`
	TonnelMinInterval time.Duration `mapstructure:"tonnel_min_interval"`
}

// EnrichConfig tunes floor/sales enrichment.
//
//   - FloorTimeout: deadline for the two floor lookups (concurrent).
//   - SalesTimeout: deadline for the sales-history lookup.
//   - FloorCacheTTL: how long cached floors stay fresh.
//   - TonnelFeeRate: marketplace fee applied to Tonnel-sourced amounts on
//     output (price = raw * (1 + fee)). Raw values stay fee-free internally.
//   - SalesLimit: how many recent sales to show in the message.
type EnrichConfig struct {
	FloorTimeout  time.Duration `mapstructure:"floor_timeout"`
	SalesTimeout  time.Duration `mapstructure:"sales_timeout"`
	FloorCacheTTL time.Duration `mapstructure:"floor_cache_ttl"`
	TonnelFeeRate float64       `mapstructure:"tonnel_fee_rate"`
	SalesLimit    int           `mapstructure:"sales_limit"`
}

// NotifyConfig controls Telegram delivery and the fan-out pool.
type NotifyConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	Concurrency int64         `mapstructure:"concurrency"`
	QueueSize   int           `mapstructure:"queue_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// UsersConfig points at the user-filter store.
type UsersConfig struct {
	File string `mapstructure:"file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIServerConfig controls the Mini-App HTTP/WebSocket server.
type APIServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RecentSize     int      `mapstructure:"recent_size"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: GIFT_PORTALS_AUTH, GIFT_TONNEL_AUTH,
// GIFT_MRKT_AUTH, GIFT_GETGEMS_API_KEY, GIFT_BOT_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if tok := os.Getenv("GIFT_PORTALS_AUTH"); tok != "" {
		cfg.Marketplaces.Portals.Auth = tok
	}
	if tok := os.Getenv("GIFT_TONNEL_AUTH"); tok != "" {
		cfg.Marketplaces.Tonnel.Auth = tok
	}
	if tok := os.Getenv("GIFT_MRKT_AUTH"); tok != "" {
		cfg.Marketplaces.MRKT.Auth = tok
	}
	if tok := os.Getenv("GIFT_GETGEMS_API_KEY"); tok != "" {
		cfg.Marketplaces.GetGems.Auth = tok
	}
	if tok := os.Getenv("GIFT_BOT_TOKEN"); tok != "" {
		cfg.Notify.BotToken = tok
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("marketplaces.portals.base_url", "https://portal-market.com/api")
	v.SetDefault("marketplaces.portals.poll_interval", time.Second)
	v.SetDefault("marketplaces.portals.page_limit", 50)
	v.SetDefault("marketplaces.tonnel.base_url", "https://gifts2.tonnel.network/api")
	v.SetDefault("marketplaces.tonnel.poll_interval", 2*time.Second)
	v.SetDefault("marketplaces.tonnel.page_limit", 30)
	v.SetDefault("marketplaces.mrkt.base_url", "https://api.tgmrkt.io/api/v1")
	v.SetDefault("marketplaces.mrkt.poll_interval", time.Second)
	v.SetDefault("marketplaces.mrkt.page_limit", 20)
	v.SetDefault("marketplaces.getgems.base_url", "https://api.getgems.io/public-api")
	v.SetDefault("marketplaces.getgems.poll_interval", time.Second)
	v.SetDefault("marketplaces.getgems.page_limit", 100)

	v.SetDefault("monitor.seen_cap", 1000)
	v.SetDefault("monitor.tonnel_min_interval", 2*time.Second)

	v.SetDefault("enrich.floor_timeout", 3*time.Second)
	v.SetDefault("enrich.sales_timeout", 5*time.Second)
	v.SetDefault("enrich.floor_cache_ttl", 5*time.Minute)
	v.SetDefault("enrich.tonnel_fee_rate", 0.06)
	v.SetDefault("enrich.sales_limit", 5)

	v.SetDefault("users.file", "data/users.json")

	v.SetDefault("notify.concurrency", 10)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.send_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.recent_size", 50)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Notify.BotToken == "" {
		return fmt.Errorf("notify.bot_token is required (set GIFT_BOT_TOKEN)")
	}
	if c.Monitor.SeenCap <= 0 {
		return fmt.Errorf("monitor.seen_cap must be > 0")
	}
	if c.Monitor.TonnelMinInterval <= 0 {
		return fmt.Errorf("monitor.tonnel_min_interval must be > 0")
	}
	if c.Enrich.TonnelFeeRate < 0 || c.Enrich.TonnelFeeRate >= 1 {
		return fmt.Errorf("enrich.tonnel_fee_rate must be in [0, 1)")
	}
	if c.Notify.Concurrency <= 0 {
		return fmt.Errorf("notify.concurrency must be > 0")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be > 0")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid TCP port")
	}
	hasVenue := false
	for _, mp := range types.AllMarketplaces {
		mc := c.Marketplaces.ByMarketplace(mp)
		if mc.Auth == "" {
			continue
		}
		hasVenue = true
		if mc.BaseURL == "" {
			return fmt.Errorf("marketplaces.%s.base_url is required", mp)
		}
		if mc.PollInterval <= 0 {
			return fmt.Errorf("marketplaces.%s.poll_interval must be > 0", mp)
		}
	}
	if !hasVenue {
		return fmt.Errorf("at least one marketplace auth token is required")
	}
	return nil
}
