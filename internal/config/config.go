// Package config defines all configuration for nexuscore. Config is loaded
// from a YAML file (default: configs/config.yaml) with sensitive fields
// overridable via NEXUS_* environment variables, mirroring the teacher's
// viper-based Load/Validate shape.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Router    RouterConfig    `mapstructure:"router"`
	Risk      RiskConfig      `mapstructure:"risk"`
	FeeTable  FeeTableConfig  `mapstructure:"fee_table"`
	Venue     VenueConfig     `mapstructure:"venue"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RouterConfig tunes internal/matcher.Driver.
type RouterConfig struct {
	// RendezvousTimeout bounds how long an internal match waits for a
	// passive leg to go live, and separately to go terminal, before the
	// matcher abandons that one pairing attempt.
	RendezvousTimeout time.Duration `mapstructure:"rendezvous_timeout"`
}

// RiskConfig tunes internal/risk.Controller and supplies the defaults a
// newly-seen account is armed with.
type RiskConfig struct {
	// TickInterval is the controller's periodic re-evaluation period.
	// spec.md §4.4 requires 100ms.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// DefaultCurrency is the settlement currency newly-seen accounts are
	// armed with, absent an explicit admin SetParameters call.
	DefaultCurrency string `mapstructure:"default_currency"`
	// DefaultBuyingPower, DefaultNetLoss, and DefaultLossFromTop are money
	// strings (e.g. "250000.00") for the default RiskParameters every
	// newly-seen account starts with; Load keeps them as strings and they
	// are parsed when an account is first armed.
	DefaultBuyingPower    string        `mapstructure:"default_buying_power"`
	DefaultNetLoss        string        `mapstructure:"default_net_loss"`
	DefaultLossFromTop    string        `mapstructure:"default_loss_from_top"`
	DefaultTransitionTime time.Duration `mapstructure:"default_transition_time"`

	// Destinations maps a security's Market to the order destination used
	// for that account's flattening orders; "DEFAULT" is the fallback for
	// any market not listed explicitly.
	Destinations map[string]string `mapstructure:"destinations"`

	// Rates gives the exchange rate, as a "num/den" rational string, from
	// one currency to another: Rates["USD"]["CAD"] = "134/100". Same-
	// currency pairs never need an entry.
	Rates map[string]map[string]string `mapstructure:"rates"`
}

// FeeTableConfig points at the YAML fee-schedule documents
// internal/feetable.LoadConsolidatedUs reads at startup.
type FeeTableConfig struct {
	// RatesPath is the consolidated clearing/TAF/SEC/NSCC/commission rates
	// document.
	RatesPath string `mapstructure:"rates_path"`
	// Destinations maps a US destination code (ARCA, BATS, BATY, EDGA,
	// EDGX, NASDAQ, NYSE, AMEX) to that venue's own fee-table YAML path.
	Destinations map[string]string `mapstructure:"destinations"`
}

// VenueConfig configures the downstream execution venue a process talks
// to when it isn't purely simulating fills in-process.
type VenueConfig struct {
	// Simulated, when true, routes all unmatched residue to
	// internal/simengine instead of a real internal/matcher.RESTVenueDriver.
	Simulated bool          `mapstructure:"simulated"`
	BaseURL   string        `mapstructure:"base_url"`
	FeedURL   string        `mapstructure:"feed_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// DryRun fakes immediate acknowledgement with no network call.
	DryRun bool `mapstructure:"dry_run"`
	// RateLimit holds the venue's own published per-category request
	// budgets. Left zero-valued, it defaults to a conservative generic
	// budget — operators pointing at a specific venue should set these
	// from that venue's published limits rather than rely on the default.
	RateLimit VenueRateLimitConfig `mapstructure:"rate_limit"`
}

// VenueRateLimitConfig is the venue's published per-category burst/refill
// budget, expressed as a burst capacity and a steady-state requests-per-
// second refill rate, one pair per REST operation category.
type VenueRateLimitConfig struct {
	OrderBurst   float64 `mapstructure:"order_burst"`
	OrderPerSec  float64 `mapstructure:"order_per_sec"`
	CancelBurst  float64 `mapstructure:"cancel_burst"`
	CancelPerSec float64 `mapstructure:"cancel_per_sec"`
	BookBurst    float64 `mapstructure:"book_burst"`
	BookPerSec   float64 `mapstructure:"book_per_sec"`
}

// StoreConfig sets where order and report snapshots are persisted.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig controls the Prometheus /metrics endpoint.
type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive or deploy-time fields use env vars: NEXUS_VENUE_BASE_URL,
// NEXUS_VENUE_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("NEXUS_VENUE_BASE_URL"); url != "" {
		cfg.Venue.BaseURL = url
	}
	if os.Getenv("NEXUS_VENUE_DRY_RUN") == "true" || os.Getenv("NEXUS_VENUE_DRY_RUN") == "1" {
		cfg.Venue.DryRun = true
	}
	if os.Getenv("NEXUS_VENUE_SIMULATED") == "true" || os.Getenv("NEXUS_VENUE_SIMULATED") == "1" {
		cfg.Venue.Simulated = true
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Router.RendezvousTimeout <= 0 {
		c.Router.RendezvousTimeout = time.Second
	}
	if c.Risk.TickInterval <= 0 {
		c.Risk.TickInterval = 100 * time.Millisecond
	}
	if c.Risk.DefaultCurrency == "" {
		c.Risk.DefaultCurrency = "USD"
	}
	if c.Risk.DefaultTransitionTime <= 0 {
		c.Risk.DefaultTransitionTime = 60 * time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/nexuscore.db"
	}
	if c.Telemetry.ListenAddr == "" {
		c.Telemetry.ListenAddr = ":9090"
	}
	if c.Venue.Timeout <= 0 {
		c.Venue.Timeout = 10 * time.Second
	}
	// A conservative generic default, well under what any real venue
	// publishes, used only when the operator hasn't set venue-specific
	// limits for the destination they're actually talking to.
	if c.Venue.RateLimit.OrderPerSec <= 0 {
		c.Venue.RateLimit.OrderBurst = 50
		c.Venue.RateLimit.OrderPerSec = 10
	}
	if c.Venue.RateLimit.CancelPerSec <= 0 {
		c.Venue.RateLimit.CancelBurst = 50
		c.Venue.RateLimit.CancelPerSec = 10
	}
	if c.Venue.RateLimit.BookPerSec <= 0 {
		c.Venue.RateLimit.BookBurst = 25
		c.Venue.RateLimit.BookPerSec = 5
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Risk.DefaultBuyingPower == "" {
		return fmt.Errorf("risk.default_buying_power is required")
	}
	if c.Risk.DefaultNetLoss == "" {
		return fmt.Errorf("risk.default_net_loss is required")
	}
	if c.Risk.DefaultLossFromTop == "" {
		return fmt.Errorf("risk.default_loss_from_top is required")
	}
	if c.FeeTable.RatesPath == "" {
		return fmt.Errorf("fee_table.rates_path is required")
	}
	if len(c.FeeTable.Destinations) == 0 {
		return fmt.Errorf("fee_table.destinations must name at least one venue fee-table path")
	}
	if !c.Venue.Simulated && c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.base_url is required unless venue.simulated is true")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}
