// Package config manages environment variables.
//
// It reads variables from the process environment (and a `.env` file when
// one exists), loads them into structured Go types, applies defaults for
// optional values and validates the result so the relay fails fast on
// bad or missing credentials.
//
// The resulting *Config is built once at startup and never mutated after
// LoadConfig returns. Every request reads it concurrently.
package config

import (
	"strings"
	"time"

	// Side-effect import: if a `.env` file exists, it is loaded into the
	// process environment before any variable is read.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/deppfellow/cardrelay/internal/validation"
)

// EnvPrefix is the prefix every configuration variable carries.
//
// Nesting uses a double underscore, e.g.
//
//	CARDRELAY_TRELLO__API_KEY -> trello.api_key -> Config.Trello.APIKey
const EnvPrefix = "CARDRELAY_"

// Form variants accepted by Upload.FormVariant.
const (
	// FormVariantFixed reads the cover from the `cover` field and every
	// other file from the `attachments` field.
	FormVariantFixed = "fixed"

	// FormVariantField accepts files under arbitrary field names. The text
	// field `cover_file` names the field whose file becomes the cover.
	FormVariantField = "field"
)

// Config is the root configuration object for the relay.
//
// Observability is a pointer because it is optional. If not provided,
// defaults are injected by LoadConfig.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Trello        TrelloConfig         `koanf:"trello" validate:"required"`
	Upload        UploadConfig         `koanf:"upload"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime.
//
// Timeouts are stored as seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Path is where the submission endpoint is mounted.
	Path string `koanf:"path"`

	// BodyLimit caps the whole request body, in echo's size notation ("32M").
	BodyLimit string `koanf:"body_limit"`

	// RateLimit is the number of submissions per second allowed per client
	// IP. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
}

// TrelloConfig holds the static credentials and the target list.
//
// These values come from https://trello.com/app-key. The list id can be read
// from any card's JSON export (`idList`).
type TrelloConfig struct {
	APIKey   string `koanf:"api_key" validate:"required,trellokey"`
	APIToken string `koanf:"api_token" validate:"required,trellotoken"`
	ListID   string `koanf:"list_id" validate:"required,trelloid"`
	BaseURL  string `koanf:"base_url" validate:"omitempty,url"`

	// Timeout bounds every single outbound call.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`

	// LookupByToken enables scanning the target list for the correlation
	// token when the create response carries no usable card id.
	LookupByToken bool `koanf:"lookup_by_token"`
}

// UploadConfig controls how inbound files are spooled and checked.
type UploadConfig struct {
	// TrustClientType uses the client-declared content type instead of
	// sniffing the file content.
	TrustClientType bool `koanf:"trust_client_type"`

	FormVariant string `koanf:"form_variant" validate:"omitempty,oneof=fixed field"`

	// MaxFileSize is the per-file limit in bytes.
	MaxFileSize int64 `koanf:"max_file_size" validate:"gte=0"`

	// TempDir is where per-request spool directories are created.
	// Empty means os.TempDir().
	TempDir string `koanf:"temp_dir"`
}

// Defaults for optional values.
const (
	DefaultTrelloBaseURL = "https://api.trello.com/1"
	DefaultTrelloTimeout = 30 * time.Second
	DefaultMaxFileSize   = 10 << 20
	DefaultBodyLimit     = "32M"
	DefaultPath          = "/"
)

// LoadConfig loads configuration from environment variables, unmarshals it
// into Config, applies defaults and validates the result.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	// CARDRELAY_TRELLO__API_KEY -> "trello__api_key" -> "trello.api_key"
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not load env variables")
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal main config")
	}

	mainConfig.applyDefaults()

	if err := validation.Validator().Struct(mainConfig); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid observability config")
	}

	return mainConfig, nil
}

func (c *Config) applyDefaults() {
	if c.Trello.BaseURL == "" {
		c.Trello.BaseURL = DefaultTrelloBaseURL
	}
	c.Trello.BaseURL = strings.TrimRight(c.Trello.BaseURL, "/")
	if c.Trello.Timeout == 0 {
		c.Trello.Timeout = DefaultTrelloTimeout
	}

	if c.Upload.FormVariant == "" {
		c.Upload.FormVariant = FormVariantFixed
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = DefaultMaxFileSize
	}

	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = DefaultBodyLimit
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}

	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}
	// The service name is fixed; the environment follows primary.env.
	c.Observability.ServiceName = "cardrelay"
	c.Observability.Environment = c.Primary.Env

	// A partially set observability block keeps defaults for what it omits.
	defaults := DefaultObservabilityConfig()
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = defaults.Logging.Format
	}
	if c.Observability.HealthChecks.Timeout == 0 {
		c.Observability.HealthChecks.Timeout = defaults.HealthChecks.Timeout
	}
}
