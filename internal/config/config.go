// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/fetch-manifest/internal/resolver"
)

// EnvPrefix namespaces environment overrides, e.g. FETCH_MANIFEST_SERVER_PORT.
const EnvPrefix = "FETCH_MANIFEST"

// Fetcher backends.
const (
	BackendColly    = "colly"
	BackendHeadless = "headless"
	// BackendAuto fetches with colly and re-renders script-built pages in
	// the headless browser.
	BackendAuto = "auto"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	CORS bool   `mapstructure:"cors"`
	// PublicDir, when set, is served for paths that are not API routes.
	PublicDir             string `mapstructure:"public_dir"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// HTTPConfig configures outbound fetches.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	// RateLimitRPS caps fetches per second to a single host; 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// BlockedHosts are never fetched. Entries are exact hosts or "*.suffix".
	BlockedHosts []string `mapstructure:"blocked_hosts"`
}

// FetcherConfig selects the fetch backend.
type FetcherConfig struct {
	Backend  string         `mapstructure:"backend"`
	Headless HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the headless rendering backend.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs int `mapstructure:"settle_delay_ms"`
	// PromotionThreshold is the body size below which script-heavy pages
	// are re-rendered by the auto backend.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// ResolverConfig mirrors resolver.Config.
type ResolverConfig struct {
	MaxHops        int      `mapstructure:"max_hops"`
	ProbeWellKnown bool     `mapstructure:"probe_well_known"`
	Synthesize     bool     `mapstructure:"synthesize"`
	WellKnownPaths []string `mapstructure:"well_known_paths"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the preset level, e.g. "debug" or "warn".
	Level string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	GCPProjectID   string  `mapstructure:"gcp_project_id"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := applyPlatformEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors", true)
	v.SetDefault("server.public_dir", "")
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "fetch-manifest/0.1")
	v.SetDefault("http.max_body_bytes", 5<<20)
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("http.blocked_hosts", []string{})
	v.SetDefault("fetcher.backend", BackendColly)
	v.SetDefault("fetcher.headless.max_parallel", 1)
	v.SetDefault("fetcher.headless.nav_timeout_seconds", 25)
	v.SetDefault("fetcher.headless.settle_delay_ms", 500)
	v.SetDefault("fetcher.headless.promotion_threshold", 2048)
	v.SetDefault("resolver.max_hops", 5)
	v.SetDefault("resolver.probe_well_known", false)
	v.SetDefault("resolver.synthesize", true)
	v.SetDefault("resolver.well_known_paths", resolver.DefaultWellKnownPaths)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "fetch-manifest")
	v.SetDefault("telemetry.service_version", "0.1.0")
	v.SetDefault("telemetry.gcp_project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// applyPlatformEnv honours the bare HOST and PORT variables set by most
// hosting platforms. Prefixed variables still win.
func applyPlatformEnv(cfg *Config) error {
	if host, ok := os.LookupEnv("HOST"); ok && host != "" && !prefixedSet("SERVER_HOST") {
		cfg.Server.Host = host
	}
	if raw, ok := os.LookupEnv("PORT"); ok && raw != "" && !prefixedSet("SERVER_PORT") {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func prefixedSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	switch c.Fetcher.Backend {
	case BackendColly:
	case BackendHeadless, BackendAuto:
		if c.Fetcher.Headless.MaxParallel <= 0 {
			return fmt.Errorf("fetcher.headless.max_parallel must be > 0 when the headless backend is selected")
		}
	default:
		return fmt.Errorf("fetcher.backend must be %q, %q or %q, got %q",
			BackendColly, BackendHeadless, BackendAuto, c.Fetcher.Backend)
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must be >= 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if c.Resolver.MaxHops <= 0 {
		return fmt.Errorf("resolver.max_hops must be > 0")
	}
	if c.Resolver.ProbeWellKnown && len(c.Resolver.WellKnownPaths) == 0 {
		return fmt.Errorf("resolver.well_known_paths must not be empty when probing is enabled")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FetchTimeout is the per-fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// PromotionThreshold returns the auto backend's body size threshold.
func (c Config) PromotionThreshold() int {
	return c.Fetcher.Headless.PromotionThreshold
}

// ResolverSettings converts the resolver section into resolver.Config.
func (c Config) ResolverSettings() resolver.Config {
	return resolver.Config{
		MaxHops:        c.Resolver.MaxHops,
		ProbeWellKnown: c.Resolver.ProbeWellKnown,
		Synthesize:     c.Resolver.Synthesize,
		WellKnownPaths: append([]string(nil), c.Resolver.WellKnownPaths...),
	}
}
