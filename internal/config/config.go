package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duplexmedia/pagespeed/internal/report"
	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTimeout  = 60 * time.Second
	DefaultLocale   = pagespeed.DefaultLocale
	DefaultStrategy = string(pagespeed.DefaultStrategy)
	DefaultFormat   = FormatJSON
)

// Output formats.
const (
	FormatJSON = report.FormatJSON
	FormatYAML = report.FormatYAML
	FormatText = report.FormatText
	FormatProm = report.FormatProm
)

// Config is the top-level configuration of the pagespeed tool.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Query  QueryConfig  `yaml:"query"`
	Output OutputConfig `yaml:"output"`
}

// ClientConfig configures the API client.
type ClientConfig struct {
	// BaseURL is the versioned API root. Empty means pagespeed.DefaultBaseURL.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each request individually. 0 disables it.
	Timeout time.Duration `yaml:"timeout"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies how the API key is sent.
type AuthConfig struct {
	// Mode is one of: apikey | header | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the key.
	KeyEnv string `yaml:"key_env"`

	// Header overrides the header name in "header" mode.
	Header string `yaml:"header"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// TLSConfig holds TLS dial options for the API endpoint.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this against local mock servers.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFile replaces the system root pool.
	CAFile string `yaml:"ca_file"`
}

// QueryConfig describes the batch to run.
type QueryConfig struct {
	URLs     []string `yaml:"urls"`
	Locale   string   `yaml:"locale"`
	Strategy string   `yaml:"strategy"`

	// Interval re-runs the batch periodically. 0 runs it once.
	Interval time.Duration `yaml:"interval"`
}

// OutputConfig selects how results are rendered.
type OutputConfig struct {
	// Format is one of: json | yaml | text | prom.
	Format string `yaml:"format"`

	// Path is the output file. Empty writes to stdout.
	Path string `yaml:"path"`
}

// ClientOptions converts the client section into pagespeed.Options.
func (c ClientConfig) ClientOptions() pagespeed.Options {
	return pagespeed.Options{
		BaseURL: c.BaseURL,
		Timeout: c.Timeout,
		Auth: pagespeed.Auth{
			Mode:   c.Auth.Mode,
			KeyEnv: c.Auth.KeyEnv,
			Header: c.Auth.Header,
		},
		TLS: pagespeed.TLS{
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
			CAFile:             c.TLS.CAFile,
		},
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadRaw is Load without validation, for callers that layer flag
// overrides on top of the file and validate the merged result.
func LoadRaw(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return decode(data)
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Timeout: DefaultTimeout,
		},
		Query: QueryConfig{
			Locale:   DefaultLocale,
			Strategy: DefaultStrategy,
		},
		Output: OutputConfig{
			Format: DefaultFormat,
		},
	}
}

// Validate checks required fields and structural constraints.
// The strategy is not checked: the API decides which values are legal.
func Validate(cfg *Config) error {
	if cfg.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}
	switch cfg.Client.Auth.Mode {
	case pagespeed.AuthAPIKey, pagespeed.AuthHeader:
		if cfg.Client.Auth.KeyEnv == "" {
			return fmt.Errorf("client.auth.key_env is required for mode %q", cfg.Client.Auth.Mode)
		}
	case pagespeed.AuthNone, "":
	default:
		return fmt.Errorf("client.auth: unknown mode %q", cfg.Client.Auth.Mode)
	}
	if len(cfg.Query.URLs) == 0 {
		return fmt.Errorf("query.urls: at least one url is required")
	}
	for i, u := range cfg.Query.URLs {
		if u == "" {
			return fmt.Errorf("query.urls[%d]: url is empty", i)
		}
	}
	if cfg.Query.Interval < 0 {
		return fmt.Errorf("query.interval must not be negative")
	}
	switch cfg.Output.Format {
	case FormatJSON, FormatYAML, FormatText, FormatProm:
	default:
		return fmt.Errorf("output.format: unknown format %q", cfg.Output.Format)
	}
	return nil
}
