// Package config loads and validates depopfeed configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultSeller is used when no seller is configured.
const DefaultSeller = "shopy2z"

// Storage provider names.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Config captures every knob the fetch pipeline reads.
type Config struct {
	Seller  string        `mapstructure:"seller"`
	Cookie  CookieConfig  `mapstructure:"cookie"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Browser BrowserConfig `mapstructure:"browser"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Run     RunConfig     `mapstructure:"run"`

	// SellerDefaulted is set when Seller fell back to DefaultSeller.
	SellerDefaulted bool `mapstructure:"-"`
}

// CookieConfig locates the marketplace session cookie.
type CookieConfig struct {
	Value     string `mapstructure:"value"`
	File      string `mapstructure:"file"`
	CachePath string `mapstructure:"cache_path"`
	Domain    string `mapstructure:"domain"`
}

// HTTPConfig configures the API tier.
type HTTPConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	SiteURL          string `mapstructure:"site_url"`
	UserAgent        string `mapstructure:"user_agent"`
	Limit            int    `mapstructure:"limit"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	DisableProxy     bool   `mapstructure:"disable_proxy"`
}

// BrowserConfig configures the browser tier.
type BrowserConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	Headless          bool    `mapstructure:"headless"`
	ExecPath          string  `mapstructure:"exec_path"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	StoreSettleMs     int     `mapstructure:"store_settle_ms"`
	PageSettleMs      int     `mapstructure:"page_settle_ms"`
	PagesPerSecond    float64 `mapstructure:"pages_per_second"`
	LinkSelector      string  `mapstructure:"link_selector"`
}

// StorageConfig selects where the snapshot lives.
type StorageConfig struct {
	Provider string             `mapstructure:"provider"`
	Local    LocalStorageConfig `mapstructure:"local"`
	GCS      GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig points at the snapshot file.
type LocalStorageConfig struct {
	Path string `mapstructure:"path"`
}

// GCSStorageConfig points at the snapshot object.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RunConfig bounds a whole invocation.
type RunConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// legacyEnv keeps the environment names older deployments already set.
var legacyEnv = map[string]string{
	"seller":             "DEPOP_USERNAME",
	"cookie.value":       "DEPOP_COOKIE",
	"cookie.file":        "DEPOP_COOKIE_FILE",
	"http.disable_proxy": "DEPOP_DISABLE_PROXY",
	"browser.headless":   "DEPOP_PLAYWRIGHT_HEADLESS",
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"seller":        "seller",
	"cookie":        "cookie.value",
	"cookie-file":   "cookie.file",
	"disable-proxy": "http.disable_proxy",
	"headless":      "browser.headless",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags the user changed, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	// Every leaf is bound by name. AutomaticEnv would let DEPOP_COOKIE shadow
	// the whole cookie section.
	for _, key := range v.AllKeys() {
		names := []string{key, envName(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(names...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	// Legacy switches accept 1/true/yes.
	for _, key := range []string{"http.disable_proxy", "browser.headless"} {
		v.Set(key, truthy(v.GetString(key)))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Seller = strings.TrimSpace(cfg.Seller)
	if cfg.Seller == "" {
		cfg.Seller = DefaultSeller
		cfg.SellerDefaulted = true
	}
	cfg.Cookie.Value = strings.TrimSpace(cfg.Cookie.Value)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envName(key string) string {
	return "DEPOP_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register keys so their environment names get bound.
	for _, key := range []string{
		"seller", "cookie.value", "cookie.file",
		"http.user_agent", "browser.exec_path", "browser.link_selector",
		"storage.gcs.bucket", "metrics.textfile_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("cookie.cache_path", "depop.cookie")
	v.SetDefault("cookie.domain", "depop")
	v.SetDefault("http.base_url", "https://webapi.depop.com")
	v.SetDefault("http.site_url", "https://www.depop.com")
	v.SetDefault("http.limit", 200)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("http.disable_proxy", false)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.store_settle_ms", 3000)
	v.SetDefault("browser.page_settle_ms", 2000)
	v.SetDefault("browser.pages_per_second", 1.0)
	v.SetDefault("storage.provider", StorageLocal)
	v.SetDefault("storage.local.path", "data/products.json")
	v.SetDefault("storage.gcs.object", "products.json")
	v.SetDefault("logging.development", true)
	v.SetDefault("run.timeout_seconds", 900)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.Limit <= 0 {
		return fmt.Errorf("http.limit must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms >= 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.StoreSettleMs < 0 || c.Browser.PageSettleMs < 0 {
		return fmt.Errorf("browser settle delays must be >= 0")
	}
	if c.Browser.PagesPerSecond < 0 {
		return fmt.Errorf("browser.pages_per_second must be >= 0")
	}
	if c.Run.TimeoutSeconds <= 0 {
		return fmt.Errorf("run.timeout_seconds must be > 0")
	}
	if c.Cookie.CachePath == "" {
		return fmt.Errorf("cookie.cache_path must be set")
	}
	switch c.Storage.Provider {
	case StorageLocal:
		if c.Storage.Local.Path == "" {
			return fmt.Errorf("storage.local.path must be set for the local provider")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" || c.Storage.GCS.Object == "" {
			return fmt.Errorf("storage.gcs.bucket and storage.gcs.object must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	return nil
}

// RequestTimeout is the per-request API budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RunBudget bounds the live acquisition tiers.
func (c Config) RunBudget() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// NavigationTimeout bounds one browser navigation.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// StoreSettle is the pause after the storefront loads.
func (c Config) StoreSettle() time.Duration {
	return time.Duration(c.Browser.StoreSettleMs) * time.Millisecond
}

// PageSettle is the pause after a product page loads.
func (c Config) PageSettle() time.Duration {
	return time.Duration(c.Browser.PageSettleMs) * time.Millisecond
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
