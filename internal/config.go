package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
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
	App         ApplicationConfig `yaml:"app" toml:"app"`
	Attachments AttachmentsConfig `yaml:"attachments" toml:"attachments"`
	Documents   DocumentsConfig   `yaml:"documents" toml:"documents"`
	SQLite      SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Outline     OutlineConfig     `yaml:"outline" toml:"outline"`
	Sweep       SweepConfig       `yaml:"sweep" toml:"sweep"`
	Clip        ClipConfig        `yaml:"clip" toml:"clip"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Attachments, &c.Documents, &c.SQLite, &c.Auth, &c.Outline, &c.Sweep, &c.Clip,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Duration is a time.Duration read from strings like "10m" or "1h30m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// AttachmentsConfig holds the path to the attachment folder.
type AttachmentsConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the attachments configuration.
func (c *AttachmentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DocumentsConfig holds the path to the outline documents folder. An empty
// path leaves documents out of the catalog.
type DocumentsConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Enabled reports whether a documents folder is configured.
func (c *DocumentsConfig) Enabled() bool {
	return c.Path != ""
}

// Validate validates the documents configuration.
func (c *DocumentsConfig) Validate() error {
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
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
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

var planningRe = regexp.MustCompile(`^[A-Z][A-Z0-9_-]*$`)

// OutlineConfig holds outline parser configuration.
type OutlineConfig struct {
	// Plannings are extra planning keywords recognised after heading stars.
	Plannings []string `yaml:"plannings" toml:"plannings"`
}

// Validate validates the outline configuration.
func (c *OutlineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Plannings, validation.Each(validation.Match(planningRe).
			Error("must be an upper-case word"))),
	)
}

// SweepConfig holds orphan sweep configuration.
type SweepConfig struct {
	GracePeriod Duration `yaml:"grace_period" toml:"grace_period"`
}

// Validate validates the sweep configuration.
func (c *SweepConfig) Validate() error {
	if c.GracePeriod.Duration < 0 {
		return errors.New("sweep: grace_period must not be negative")
	}
	return nil
}

// ClipConfig holds URL clipping configuration.
type ClipConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled"`
	Rate     float64  `yaml:"rate" toml:"rate"`
	Burst    int      `yaml:"burst" toml:"burst"`
	MaxBytes int64    `yaml:"max_bytes" toml:"max_bytes"`
	Timeout  Duration `yaml:"timeout" toml:"timeout"`
}

// Validate validates the clip configuration.
func (c *ClipConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Rate, validation.Required, validation.Min(0.01)),
		validation.Field(&c.Burst, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.Timeout, validation.By(func(any) error {
			if c.Timeout.Duration <= 0 {
				return errors.New("must be positive")
			}
			return nil
		})),
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
		Attachments: AttachmentsConfig{
			Path: "./attachments",
		},
		Documents: DocumentsConfig{
			Path: "./documents",
		},
		SQLite: SQLiteConfig{
			Path: "./iceberg.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Sweep: SweepConfig{
			GracePeriod: Duration{10 * time.Minute},
		},
		Clip: ClipConfig{
			Enabled:  true,
			Rate:     2,
			Burst:    4,
			MaxBytes: 10 << 20,
			Timeout:  Duration{30 * time.Second},
		},
	}
}
