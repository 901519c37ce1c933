package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
	AuthModeJWKS     = "jwks"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Content ContentConfig     `yaml:"content"`
	Assets  AssetsConfig      `yaml:"assets"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	CORS    CORSConfig        `yaml:"cors"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Content, &c.Assets, &c.SQLite, &c.Auth, &c.Events} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
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

// ContentConfig holds the path to the article directory.
type ContentConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AssetsConfig holds the directory uploaded media is stored in.
type AssetsConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the assets configuration.
func (c *AssetsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": HS256 JWTs signed with Secret.
//   - "jwks": RS256/ES256 JWTs verified against the key set at JWKSURL.
type AuthConfig struct {
	Mode    string `yaml:"mode"`
	Token   string `yaml:"token"`
	Secret  string `yaml:"secret"`
	JWKSURL string `yaml:"jwks_url"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT, AuthModeJWKS)),
		validation.Field(&c.JWKSURL, is.URL),
	); err != nil {
		return err
	}
	switch {
	case c.Mode == AuthModeToken && c.Token == "":
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	case c.Mode == AuthModeJWT && len(c.Secret) < 32:
		return fmt.Errorf("auth: mode is %q but secret is shorter than 32 bytes", AuthModeJWT)
	case c.Mode == AuthModeJWKS && c.JWKSURL == "":
		return fmt.Errorf("auth: mode is %q but jwks_url is empty", AuthModeJWKS)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode != AuthModeDisabled && c.Mode != ""
}

// CORSConfig lists the browser origins allowed to call the API.
// An empty list disables CORS handling.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// EventsConfig tunes the SSE stream.
type EventsConfig struct {
	// IndexThrottle coalesces index.updated events.
	IndexThrottle time.Duration `yaml:"index_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IndexThrottle, validation.Min(time.Duration(0))),
	)
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
		Content: ContentConfig{
			Path: "./content",
		},
		Assets: AssetsConfig{
			Dir: "./assets",
		},
		SQLite: SQLiteConfig{
			Path: "./folio.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			IndexThrottle: 2 * time.Second,
		},
	}
}
