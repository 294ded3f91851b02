// Package config loads trublog settings from defaults, an optional YAML file
// and TRUBLOG_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRUBLOG_CRAWL_MAX_URLS.
const EnvPrefix = "TRUBLOG"

type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Filter    FilterConfig    `mapstructure:"filter"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type CrawlConfig struct {
	MaxSitemaps       int           `mapstructure:"max_sitemaps"`
	MaxURLs           int           `mapstructure:"max_urls"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	IncludeSubdomains bool          `mapstructure:"include_subdomains"`
	SitemapTimeout    time.Duration `mapstructure:"sitemap_timeout"`
	RobotsTimeout     time.Duration `mapstructure:"robots_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	UserAgents        []string      `mapstructure:"user_agents"`
	UAStrategy        string        `mapstructure:"ua_strategy"`
	Proxies           []string      `mapstructure:"proxies"`
	ProxyFile         string        `mapstructure:"proxy_file"`
	CookieJar         bool          `mapstructure:"cookie_jar"`

	// Targets bounds how many domains one harvest command crawls at once.
	Targets int `mapstructure:"targets"`
}

type DiscoveryConfig struct {
	SitemapPaths      []string `mapstructure:"sitemap_paths"`
	Subdomains        []string `mapstructure:"subdomains"`
	RobotsSubdomains  int      `mapstructure:"robots_subdomains"`
	RobotsConcurrency int      `mapstructure:"robots_concurrency"`
}

// FilterConfig overrides the URL classifier lists. Empty lists keep the
// built-in defaults.
type FilterConfig struct {
	DeniedLocales  []string `mapstructure:"denied_locales"`
	AllowedLocales []string `mapstructure:"allowed_locales"`
	LocaleParams   []string `mapstructure:"locale_params"`
	LocalePatterns []string `mapstructure:"locale_patterns"`
	SkipPatterns   []string `mapstructure:"skip_patterns"`
}

type LLMConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	APIURL    string        `mapstructure:"api_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	// Backend is one of sqlite, json, csv or none.
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Port 0 disables the /metrics endpoint.
	Port int `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.max_sitemaps", 500)
	v.SetDefault("crawl.max_urls", 50000)
	v.SetDefault("crawl.batch_size", 30)
	v.SetDefault("crawl.concurrency", 15)
	v.SetDefault("crawl.include_subdomains", true)
	v.SetDefault("crawl.sitemap_timeout", 30*time.Second)
	v.SetDefault("crawl.robots_timeout", 10*time.Second)
	v.SetDefault("crawl.requests_per_second", 0.0)
	v.SetDefault("crawl.jitter", 0.0)
	v.SetDefault("crawl.max_body_bytes", int64(50<<20))
	v.SetDefault("crawl.max_redirects", 10)
	v.SetDefault("crawl.fingerprint", "go")
	v.SetDefault("crawl.user_agents", []string{})
	v.SetDefault("crawl.ua_strategy", "sequential")
	v.SetDefault("crawl.proxies", []string{})
	v.SetDefault("crawl.proxy_file", "")
	v.SetDefault("crawl.cookie_jar", false)
	v.SetDefault("crawl.targets", 3)

	v.SetDefault("discovery.sitemap_paths", []string{})
	v.SetDefault("discovery.subdomains", []string{})
	v.SetDefault("discovery.robots_subdomains", 5)
	v.SetDefault("discovery.robots_concurrency", 10)

	v.SetDefault("filter.denied_locales", []string{})
	v.SetDefault("filter.allowed_locales", []string{})
	v.SetDefault("filter.locale_params", []string{})
	v.SetDefault("filter.locale_patterns", []string{})
	v.SetDefault("filter.skip_patterns", []string{})

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_url", "https://api.anthropic.com")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 50)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.max_age", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.port", 0)
}

func defaultStoragePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "trublog", "snapshots.db")
	}
	return "trublog.db"
}

// Load reads configuration. An explicit path must exist; without one,
// ./trublog.yaml and $HOME/.trublog/trublog.yaml are tried and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional Anthropic variable also works.
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("trublog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".trublog"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "json", "csv", "none":
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.Crawl.MaxSitemaps < 0 || c.Crawl.MaxURLs < 0 || c.Crawl.BatchSize < 0 || c.Crawl.Concurrency < 0 || c.Crawl.Targets < 0 {
		return errors.New("config: crawl bounds must not be negative")
	}
	if c.Crawl.Jitter < 0 || c.Crawl.Jitter > 1 {
		return fmt.Errorf("config: crawl.jitter %v outside [0, 1]", c.Crawl.Jitter)
	}
	// A proxied request is tunnelled with CONNECT and handshaken by crypto/tls,
	// so a browser fingerprint would be dropped without notice.
	if fp := strings.ToLower(strings.TrimSpace(c.Crawl.Fingerprint)); fp != "" && fp != "go" &&
		(len(c.Crawl.Proxies) > 0 || c.Crawl.ProxyFile != "") {
		return fmt.Errorf("config: crawl.fingerprint %q cannot be combined with proxies", c.Crawl.Fingerprint)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("config: invalid metrics.port %d", c.Metrics.Port)
	}
	return nil
}
