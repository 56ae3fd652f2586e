package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"stract/internal/paths"
	"stract/internal/version"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// Failure policies for enrichment sub-calls.
const (
	// PolicyDegrade drops a failed optional sub-call and keeps the rest.
	PolicyDegrade = "degrade"
	// PolicyJoint fails the whole aggregate when any sub-call fails.
	PolicyJoint = "joint"
)

// Config represents the complete client configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version"`

	Backend   BackendConfig   `json:"backend" mapstructure:"backend" toml:"backend"`
	Search    SearchConfig    `json:"search" mapstructure:"search" toml:"search"`
	Streaming StreamingConfig `json:"streaming" mapstructure:"streaming" toml:"streaming"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache" toml:"cache"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging" toml:"logging"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics" toml:"metrics"`
	Tracing   TracingConfig   `json:"tracing" mapstructure:"tracing" toml:"tracing"`
}

// BackendConfig describes the remote search API
type BackendConfig struct {
	BaseURL        string `json:"baseUrl" mapstructure:"baseUrl" toml:"baseUrl"`
	PathPrefix     string `json:"pathPrefix" mapstructure:"pathPrefix" toml:"pathPrefix"`
	TimeoutMs      int    `json:"timeoutMs" mapstructure:"timeoutMs" toml:"timeoutMs"`
	UserAgent      string `json:"userAgent" mapstructure:"userAgent" toml:"userAgent"`
	ForwardedFor   string `json:"forwardedFor,omitempty" mapstructure:"forwardedFor" toml:"forwardedFor,omitempty"`
	AcceptEncoding string `json:"acceptEncoding" mapstructure:"acceptEncoding" toml:"acceptEncoding"`
}

// SearchConfig contains result orchestration settings
type SearchConfig struct {
	NumResults       int    `json:"numResults" mapstructure:"numResults" toml:"numResults"`
	FailurePolicy    string `json:"failurePolicy" mapstructure:"failurePolicy" toml:"failurePolicy"`
	DiscussionsOptic string `json:"discussionsOptic" mapstructure:"discussionsOptic" toml:"discussionsOptic"`
	DiscussionsLimit int    `json:"discussionsLimit" mapstructure:"discussionsLimit" toml:"discussionsLimit"`
	ResolveOpticURLs bool   `json:"resolveOpticUrls" mapstructure:"resolveOpticUrls" toml:"resolveOpticUrls"`
}

// StreamingConfig contains event-stream settings
type StreamingConfig struct {
	MaxFrameBytes int `json:"maxFrameBytes" mapstructure:"maxFrameBytes" toml:"maxFrameBytes"`
}

// CacheConfig contains local response cache settings
type CacheConfig struct {
	Enabled               bool   `json:"enabled" mapstructure:"enabled" toml:"enabled"`
	Path                  string `json:"path,omitempty" mapstructure:"path" toml:"path,omitempty"`
	AutosuggestTtlSeconds int    `json:"autosuggestTtlSeconds" mapstructure:"autosuggestTtlSeconds" toml:"autosuggestTtlSeconds"`
	WebgraphTtlSeconds    int    `json:"webgraphTtlSeconds" mapstructure:"webgraphTtlSeconds" toml:"webgraphTtlSeconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" toml:"format"`
	Level  string `json:"level" mapstructure:"level" toml:"level"`
}

// MetricsConfig contains Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled" toml:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr" toml:"addr"`
}

// TracingConfig toggles OpenTelemetry spans
type TracingConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled" toml:"enabled"`
}

// DefaultDiscussionsOptic restricts results to forum-style hosts.
const DefaultDiscussionsOptic = `DiscardNonMatching;
Rule { Matches { Site("|reddit.com|") } };
Rule { Matches { Site("|news.ycombinator.com|") } };
Rule { Matches { Site("|stackoverflow.com|") } };
Rule { Matches { Site("|stackexchange.com|") } };
Rule { Matches { Site("|lobste.rs|") } };`

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			BaseURL:        "https://stract.com",
			PathPrefix:     "/beta/api",
			TimeoutMs:      30000,
			UserAgent:      version.UserAgent(),
			AcceptEncoding: "zstd, gzip",
		},
		Search: SearchConfig{
			NumResults:       20,
			FailurePolicy:    PolicyDegrade,
			DiscussionsOptic: DefaultDiscussionsOptic,
			DiscussionsLimit: 10,
			ResolveOpticURLs: true,
		},
		Streaming: StreamingConfig{
			MaxFrameBytes: 2 * 1024 * 1024,
		},
		Cache: CacheConfig{
			Enabled:               true,
			AutosuggestTtlSeconds: 300,
			WebgraphTtlSeconds:    3600,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "warn",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// Endpoint returns the base URL joined with the path prefix.
func (b BackendConfig) Endpoint() string {
	return strings.TrimSuffix(b.BaseURL, "/") + "/" + strings.Trim(b.PathPrefix, "/")
}

// AutosuggestTTL returns the autosuggest cache TTL.
func (c CacheConfig) AutosuggestTTL() time.Duration {
	return time.Duration(c.AutosuggestTtlSeconds) * time.Second
}

// WebgraphTTL returns the webgraph cache TTL.
func (c CacheConfig) WebgraphTTL() time.Duration {
	return time.Duration(c.WebgraphTtlSeconds) * time.Second
}

// LoadConfig loads configuration from path, or from ~/.stract/config.toml when
// path is empty. A missing file yields the defaults. STRACT_* environment
// variables override file values (e.g. STRACT_BACKEND_BASEURL).
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := paths.GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("STRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) && !stderrors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so that env overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("backend.baseUrl", d.Backend.BaseURL)
	v.SetDefault("backend.pathPrefix", d.Backend.PathPrefix)
	v.SetDefault("backend.timeoutMs", d.Backend.TimeoutMs)
	v.SetDefault("backend.userAgent", d.Backend.UserAgent)
	v.SetDefault("backend.forwardedFor", d.Backend.ForwardedFor)
	v.SetDefault("backend.acceptEncoding", d.Backend.AcceptEncoding)

	v.SetDefault("search.numResults", d.Search.NumResults)
	v.SetDefault("search.failurePolicy", d.Search.FailurePolicy)
	v.SetDefault("search.discussionsOptic", d.Search.DiscussionsOptic)
	v.SetDefault("search.discussionsLimit", d.Search.DiscussionsLimit)
	v.SetDefault("search.resolveOpticUrls", d.Search.ResolveOpticURLs)

	v.SetDefault("streaming.maxFrameBytes", d.Streaming.MaxFrameBytes)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.autosuggestTtlSeconds", d.Cache.AutosuggestTtlSeconds)
	v.SetDefault("cache.webgraphTtlSeconds", d.Cache.WebgraphTtlSeconds)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
}

// Save writes the configuration as TOML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return toml.NewEncoder(f).Encode(c)
}

// Validate checks if the configuration is valid and normalizes the base URL.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Backend.BaseURL == "" {
		return &ConfigError{Field: "backend.baseUrl", Message: "base URL is required"}
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return &ConfigError{Field: "backend.baseUrl", Message: "must start with http:// or https://"}
	}
	c.Backend.BaseURL = strings.TrimSuffix(c.Backend.BaseURL, "/")

	switch c.Search.FailurePolicy {
	case PolicyDegrade, PolicyJoint:
	default:
		return &ConfigError{Field: "search.failurePolicy", Message: "must be \"degrade\" or \"joint\""}
	}
	if c.Search.NumResults <= 0 {
		return &ConfigError{Field: "search.numResults", Message: "must be positive"}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be \"human\" or \"json\""}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
