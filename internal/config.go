package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gtsreg/internal/gts"
	"github.com/starford/gtsreg/internal/parser"
	"github.com/starford/gtsreg/internal/registry"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Workspace  WorkspaceConfig   `yaml:"workspace"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Validation ValidationConfig  `yaml:"validation"`
	GTS        GTSConfig         `yaml:"gts"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.GTS.Validate()
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

// WorkspaceConfig describes the directory of GTS documents.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
	// ToolingDir is a subdirectory whose files are never ingested.
	ToolingDir string `yaml:"tooling_dir"`
	// Extensions lists the candidate file extensions, dot included.
	Extensions []string `yaml:"extensions"`
	Watch      bool     `yaml:"watch"`
}

var errExtension = errors.New("must start with a dot")

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	if c.ToolingDir == "" {
		c.ToolingDir = registry.DefaultToolingDir
	}
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), parser.DefaultExtensions...)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.ToolingDir, validation.By(func(v any) error {
			if s := v.(string); s != filepath.Base(s) {
				return errors.New("must be a single directory name")
			}
			return nil
		})),
		validation.Field(&c.Extensions, validation.Each(validation.By(func(v any) error {
			if !strings.HasPrefix(v.(string), ".") {
				return errExtension
			}
			return nil
		}))),
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

// LockPath returns the advisory lock file guarding the index.
func (c *SQLiteConfig) LockPath() string {
	return c.Path + ".lock"
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

// ValidationConfig controls the validation orchestrator.
type ValidationConfig struct {
	// Structural enables JSON Schema validation of objects and schemas.
	// Reference checks always run.
	Structural bool `yaml:"structural"`
	// Debug lowers the registry logger to debug level.
	Debug bool `yaml:"debug"`
}

// GTSConfig selects the keys entities are recognised by.
type GTSConfig struct {
	EntityIDFields []string `yaml:"entity_id_fields"`
	SchemaIDFields []string `yaml:"schema_id_fields"`
}

// Validate validates the GTS configuration.
func (c *GTSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.EntityIDFields, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.SchemaIDFields, validation.Required, validation.Each(validation.Required)),
	)
}

// Recognition converts the section to the entity recognition rules.
func (c *GTSConfig) Recognition() gts.Config {
	return gts.Config{
		EntityIDFields: append([]string(nil), c.EntityIDFields...),
		SchemaIDFields: append([]string(nil), c.SchemaIDFields...),
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	rec := gts.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Path:       "./workspace",
			ToolingDir: registry.DefaultToolingDir,
			Extensions: append([]string(nil), parser.DefaultExtensions...),
			Watch:      true,
		},
		SQLite: SQLiteConfig{
			Path: "./gtsreg.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Validation: ValidationConfig{
			Structural: true,
		},
		GTS: GTSConfig{
			EntityIDFields: rec.EntityIDFields,
			SchemaIDFields: rec.SchemaIDFields,
		},
	}
}
