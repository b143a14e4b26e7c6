package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kvault/internal/api"
	"github.com/starford/kvault/internal/migration"
)

// Auth modes.
const (
	AuthModeDisabled = api.AuthDisabled
	AuthModeHeader   = api.AuthHeader
	AuthModeToken    = api.AuthToken
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Access    AccessConfig      `yaml:"access"`
	Migration MigrationConfig   `yaml:"migration"`
	MCP       MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Migration.Validate()
}

// MCPOwner returns the owner the MCP server acts as, falling back to the
// default owner.
func (c *Config) MCPOwner() string {
	if c.MCP.OwnerID != "" {
		return c.MCP.OwnerID
	}
	return c.Auth.DefaultOwner
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

// AuthConfig holds caller identity configuration.
//
// Mode controls how the caller is resolved:
//   - "disabled" (default): every request acts as DefaultOwner; local use only.
//   - "header": an upstream proxy puts the caller id in Header.
//   - "token": Bearer tokens are mapped to owner ids through Tokens.
type AuthConfig struct {
	Mode         string            `yaml:"mode"`
	DefaultOwner string            `yaml:"default_owner"`
	Header       string            `yaml:"header"`
	Tokens       map[string]string `yaml:"tokens"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if c.Header == "" {
		c.Header = api.DefaultIdentityHeader
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeHeader, AuthModeToken)),
		validation.Field(&c.DefaultOwner, validation.When(c.Mode == AuthModeDisabled, validation.Required)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken {
		if len(c.Tokens) == 0 {
			return fmt.Errorf("auth: mode is %q but no tokens are configured", AuthModeToken)
		}
		for token, owner := range c.Tokens {
			if token == "" || owner == "" {
				return errors.New("auth: tokens must map a non-empty token to a non-empty owner")
			}
		}
	}
	return nil
}

// Options converts the config into router identity options.
func (c *AuthConfig) Options() api.AuthOptions {
	return api.AuthOptions{
		Mode:         c.Mode,
		DefaultOwner: c.DefaultOwner,
		Header:       c.Header,
		Tokens:       c.Tokens,
	}
}

// AccessConfig holds the access policy.
type AccessConfig struct {
	// ConcealExistence answers "not found" for other owners' ids instead of
	// "forbidden".
	ConcealExistence bool `yaml:"conceal_existence"`
}

// MigrationConfig controls the legacy migration.
type MigrationConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	Tables        []string      `yaml:"tables"` // empty means every known legacy table
	MarkdownDir   string        `yaml:"markdown_dir"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Validate validates the migration configuration.
func (c *MigrationConfig) Validate() error {
	known := make([]any, 0, len(migration.DefaultTables()))
	for _, s := range migration.DefaultTables() {
		known = append(known, s.Table)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Tables, validation.Each(validation.In(known...))),
		validation.Field(&c.MarkdownDir, validation.When(c.Watch, validation.Required.Error("is required when watch is enabled"))),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	OwnerID string `yaml:"owner_id"`
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
		SQLite: SQLiteConfig{
			Path: "./kvault.db",
		},
		Auth: AuthConfig{
			Mode:         AuthModeDisabled,
			DefaultOwner: "local",
			Header:       api.DefaultIdentityHeader,
		},
		Migration: MigrationConfig{
			Concurrency:   4,
			WatchDebounce: migration.DefaultWatchDebounce,
		},
	}
}
