package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Corpus  CorpusConfig      `yaml:"corpus"`
	Sources SourcesConfig     `yaml:"sources"`
	Topics  TopicsConfig      `yaml:"topics"`
	Links   LinksConfig       `yaml:"links"`
	State   StateConfig       `yaml:"state"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Corpus.Validate(); err != nil {
		return fmt.Errorf("corpus: %w", err)
	}
	if err := c.Sources.Validate(); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if err := c.Links.Validate(); err != nil {
		return fmt.Errorf("links: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	Workers  int        `yaml:"workers"`
	DryRun   bool       `yaml:"dry_run"`
	Strict   bool       `yaml:"strict"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(256)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig locates the Markdown documents to normalise.
type CorpusConfig struct {
	Path      string `yaml:"path"`
	Extension string `yaml:"extension"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extension, validation.Required, validation.By(func(any) error {
			if !strings.HasPrefix(c.Extension, ".") {
				return fmt.Errorf("must start with a dot")
			}
			return nil
		})),
	)
}

// SourcesConfig names the alias table (YAML or TOML) and the topic list.
type SourcesConfig struct {
	Links  string `yaml:"links"`
	Topics string `yaml:"topics"`
}

// Validate validates the sources configuration.
func (c *SourcesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Links, validation.Required),
		validation.Field(&c.Topics, validation.Required),
	)
}

// TopicsConfig controls topic detection.
type TopicsConfig struct {
	IgnoreCase bool `yaml:"ignore_case"`
}

// LinksConfig controls link classification.
type LinksConfig struct {
	// ExternalPrefixes are kept in addition to "/", "#", "http://" and "https://".
	ExternalPrefixes []string `yaml:"external_prefixes"`
	// SkipCode leaves occurrences inside code spans and blocks untouched.
	SkipCode bool `yaml:"skip_code"`
}

// Validate validates the links configuration.
func (c *LinksConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ExternalPrefixes, validation.Each(validation.Required)),
	)
}

// StateConfig holds the run ledger location. An empty path disables
// incremental runs and run history.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WatchConfig controls watch and serve modes.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig protects the mutating HTTP routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// BearerToken returns the token to enforce, or "" when auth is disabled.
func (c *AuthConfig) BearerToken() string {
	if c.Mode != AuthModeToken {
		return ""
	}
	return c.Token
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			Workers:  4,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Path:      "./content",
			Extension: ".md",
		},
		Sources: SourcesConfig{
			Links:  "./config/links.yaml",
			Topics: "./config/topics.txt",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
