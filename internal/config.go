package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/blockref/internal/refservice"
	"github.com/starford/blockref/internal/view"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Index   IndexConfig       `yaml:"index"`
	Display DisplayConfig     `yaml:"display"`
	Preview PreviewConfig     `yaml:"preview"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Preview.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig controls when incremental updates run.
//
// Debounce is the coalescing window for bursts of change notifications.
// TypingIdle is how long after the last keystroke updates stay deferred.
type IndexConfig struct {
	Debounce   time.Duration  `yaml:"debounce"`
	TypingIdle time.Duration  `yaml:"typing_idle"`
	Triggers   TriggersConfig `yaml:"triggers"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
		validation.Field(&c.TypingIdle, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
	)
}

// Options converts the index configuration for the reference service.
func (c *IndexConfig) Options() refservice.Options {
	return refservice.Options{
		Debounce:   c.Debounce,
		TypingIdle: c.TypingIdle,
		Triggers: refservice.Triggers{
			OnFileOpen:     c.Triggers.OnFileOpen,
			OnFileChange:   c.Triggers.OnFileChange,
			OnLayoutChange: c.Triggers.OnLayoutChange,
		},
	}
}

// TriggersConfig selects which host events schedule incremental updates.
type TriggersConfig struct {
	OnFileOpen     bool `yaml:"on_file_open"`
	OnFileChange   bool `yaml:"on_file_change"`
	OnLayoutChange bool `yaml:"on_layout_change"`
}

// DisplayConfig selects which counters the render layer shows.
type DisplayConfig struct {
	OnParents  bool `yaml:"on_parents"`
	OnChildren bool `yaml:"on_children"`
	Blocks     bool `yaml:"blocks"`
	Headings   bool `yaml:"headings"`
	Links      bool `yaml:"links"`
	Embeds     bool `yaml:"embeds"`
}

// Settings converts the display configuration for the view builder.
func (c *DisplayConfig) Settings() view.Settings {
	return view.Settings{
		OnParents:  c.OnParents,
		OnChildren: c.OnChildren,
		Blocks:     c.Blocks,
		Headings:   c.Headings,
		Links:      c.Links,
		Embeds:     c.Embeds,
	}
}

// PreviewConfig controls reference line previews.
type PreviewConfig struct {
	Enabled   bool `yaml:"enabled"`
	CacheSize int  `yaml:"cache_size"`
}

// Validate validates the preview configuration.
func (c *PreviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheSize, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:  "./vault",
			Watch: true,
		},
		Index: IndexConfig{
			Debounce:   500 * time.Millisecond,
			TypingIdle: 2 * time.Second,
			Triggers: TriggersConfig{
				OnFileOpen:     true,
				OnFileChange:   true,
				OnLayoutChange: true,
			},
		},
		Display: DisplayConfig{
			OnParents:  true,
			OnChildren: true,
			Blocks:     true,
			Headings:   true,
			Links:      true,
			Embeds:     true,
		},
		Preview: PreviewConfig{
			Enabled:   true,
			CacheSize: 256,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
