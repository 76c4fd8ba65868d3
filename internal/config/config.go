package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AuthModeHTTP = "http"
	AuthModeJWT  = "jwt"
	AuthModeNone = "none"

	CredentialBackendBolt = "bolt"
	CredentialBackendREST = "rest"
)

const (
	defaultUpstreamTimeout = 120 * time.Second
	defaultCredentialTable = "user_api_keys"
	defaultBoltPath        = "relay.db"

	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultPerplexityBaseURL = "https://api.perplexity.ai"
	defaultDeepseekBaseURL   = "https://api.deepseek.com"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Auth        AuthConfig        `yaml:"auth"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	UpstreamTimeout time.Duration   `yaml:"upstream_timeout"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles callers per client IP. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig describes how bearer tokens are turned into user ids.
type AuthConfig struct {
	Mode         string `yaml:"mode"`
	URL          string `yaml:"url"`
	AnonKey      string `yaml:"anon_key"`
	AnonKeyEnv   string `yaml:"anon_key_env"`
	JWTSecret    string `yaml:"jwt_secret"`
	JWTSecretEnv string `yaml:"jwt_secret_env"`
	Strict       bool   `yaml:"strict"`
}

// CredentialsConfig selects the store holding per-user provider keys.
type CredentialsConfig struct {
	Backend string          `yaml:"backend"`
	Bolt    BoltConfig      `yaml:"bolt"`
	REST    RESTStoreConfig `yaml:"rest"`
}

// BoltConfig points at a local bbolt database file.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// RESTStoreConfig describes a PostgREST-style credential table.
type RESTStoreConfig struct {
	URL           string `yaml:"url"`
	Table         string `yaml:"table"`
	ServiceKey    string `yaml:"service_key"`
	ServiceKeyEnv string `yaml:"service_key_env"`
}

// ProvidersConfig catalogues upstream provider endpoints.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai"`
	Perplexity ProviderConfig `yaml:"perplexity"`
	Deepseek   ProviderConfig `yaml:"deepseek"`
}

// ProviderConfig captures routing info for a provider. Keys are per user
// and come from the credential store, never from configuration.
type ProviderConfig struct {
	BaseURL string  `yaml:"base_url"`
	Headers Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// Load reads YAML configuration from disk, applies defaults and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes, resolves environment-backed secrets and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	cfg.resolveSecrets(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.UpstreamTimeout == 0 {
		c.Server.UpstreamTimeout = defaultUpstreamTimeout
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeHTTP
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = CredentialBackendBolt
	}
	if c.Credentials.Bolt.Path == "" {
		c.Credentials.Bolt.Path = defaultBoltPath
	}
	if c.Credentials.REST.Table == "" {
		c.Credentials.REST.Table = defaultCredentialTable
	}
	if c.Providers.OpenAI.BaseURL == "" {
		c.Providers.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if c.Providers.Perplexity.BaseURL == "" {
		c.Providers.Perplexity.BaseURL = defaultPerplexityBaseURL
	}
	if c.Providers.Deepseek.BaseURL == "" {
		c.Providers.Deepseek.BaseURL = defaultDeepseekBaseURL
	}
}

func (c *Config) resolveSecrets(getenv func(string) string) {
	if c.Auth.AnonKey == "" && c.Auth.AnonKeyEnv != "" {
		c.Auth.AnonKey = getenv(c.Auth.AnonKeyEnv)
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWTSecretEnv != "" {
		c.Auth.JWTSecret = getenv(c.Auth.JWTSecretEnv)
	}
	if c.Credentials.REST.ServiceKey == "" && c.Credentials.REST.ServiceKeyEnv != "" {
		c.Credentials.REST.ServiceKey = getenv(c.Credentials.REST.ServiceKeyEnv)
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.UpstreamTimeout < 0 {
		return fmt.Errorf("server.upstream_timeout must not be negative, got %s", c.Server.UpstreamTimeout)
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must not be negative")
	}
	if c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit.burst must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Credentials.validate(); err != nil {
		return err
	}

	providers := map[string]ProviderConfig{
		"openai":     c.Providers.OpenAI,
		"perplexity": c.Providers.Perplexity,
		"deepseek":   c.Providers.Deepseek,
	}
	for name, provider := range providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	return nil
}

func (a AuthConfig) validate() error {
	switch a.Mode {
	case AuthModeHTTP:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("auth.url must be provided when auth.mode is %q", AuthModeHTTP)
		}
	case AuthModeJWT:
		if a.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret (or auth.jwt_secret_env) must be set when auth.mode is %q", AuthModeJWT)
		}
	case AuthModeNone:
	default:
		return fmt.Errorf("auth.mode %q must be one of %q, %q or %q", a.Mode, AuthModeHTTP, AuthModeJWT, AuthModeNone)
	}
	return nil
}

func (c CredentialsConfig) validate() error {
	switch c.Backend {
	case CredentialBackendBolt:
		if strings.TrimSpace(c.Bolt.Path) == "" {
			return fmt.Errorf("credentials.bolt.path must not be empty")
		}
	case CredentialBackendREST:
		if strings.TrimSpace(c.REST.URL) == "" {
			return fmt.Errorf("credentials.rest.url must be provided")
		}
		if c.REST.ServiceKey == "" {
			return fmt.Errorf("credentials.rest.service_key (or service_key_env) must be set")
		}
	default:
		return fmt.Errorf("credentials.backend %q must be %q or %q", c.Backend, CredentialBackendBolt, CredentialBackendREST)
	}
	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	if !strings.HasPrefix(provider.BaseURL, "http://") && !strings.HasPrefix(provider.BaseURL, "https://") {
		return fmt.Errorf("provider %s: base_url %q must be an http(s) URL", name, provider.BaseURL)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
		if strings.EqualFold(headerKey, "Authorization") {
			return fmt.Errorf("provider %s: header %q is reserved for the stored credential", name, headerKey)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
