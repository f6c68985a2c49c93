package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"

	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatAuto = "auto"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Convert  ConvertConfig  `mapstructure:"convert"`
	Sanitize SanitizeConfig `mapstructure:"sanitize"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Export   ExportConfig   `mapstructure:"export"`
}

type ServerConfig struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
}

type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type ConvertConfig struct {
	// Format of the written nested cassette: yaml, json or auto (by extension).
	Format  string `mapstructure:"format"`
	OnError string `mapstructure:"on_error"`
}

type SanitizeConfig struct {
	Extensions      []string          `mapstructure:"extensions"`
	OnError         string            `mapstructure:"on_error"`
	TestOrgID       int64             `mapstructure:"test_org_id"`
	TestUserID      int64             `mapstructure:"test_user_id"`
	TestEmail       string            `mapstructure:"test_email"`
	OrgIDFields     []string          `mapstructure:"org_id_fields"`
	UserIDFields    []string          `mapstructure:"user_id_fields"`
	EmailFields     []string          `mapstructure:"email_fields"`
	NameFields      map[string]string `mapstructure:"name_fields"`
	NameFallback    string            `mapstructure:"name_fallback"`
	SanitizeRequest bool              `mapstructure:"sanitize_request_body"`
}

type PlaybackConfig struct {
	MatchingStrategy string                 `mapstructure:"matching_strategy"`
	MatchQuery       bool                   `mapstructure:"match_query"`
	NotFoundResponse NotFoundResponseConfig `mapstructure:"not_found_response"`
}

type NotFoundResponseConfig struct {
	Status int                    `mapstructure:"status"`
	Body   map[string]interface{} `mapstructure:"body"`
}

type ExportConfig struct {
	PrettyPrint bool `mapstructure:"pretty_print"`
	Compress    bool `mapstructure:"compress"`
}

var (
	DefaultOrgIDFields  = []string{"org_id", "org"}
	DefaultUserIDFields = []string{
		"owner_id", "published_by_id", "user_id", "assignee_id",
		"language_okay_updated_by_id", "infosec_program_id",
	}
	DefaultEmailFields = []string{"email"}
	DefaultNameFields  = map[string]string{
		"first_name":         "Test",
		"last_name":          "User",
		"display_name":       "Test User",
		"short_display_name": "TU",
		"audit_team_name":    "Test Audit Team",
	}
)

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.vcrkit")
	}

	v.SetEnvPrefix("VCRKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// An explicitly empty name_fields map keeps the built-in placeholders.
	if len(config.Sanitize.NameFields) == 0 {
		config.Sanitize.NameFields = copyNames(DefaultNameFields)
	}

	return &config, nil
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".vcrkit", "ledger.db")
	}
	return filepath.Join(homeDir, ".vcrkit", "ledger.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_host", "127.0.0.1")
	v.SetDefault("server.listen_port", 8090)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", defaultDBPath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)

	v.SetDefault("convert.format", FormatYAML)
	v.SetDefault("convert.on_error", PolicyContinue)

	v.SetDefault("sanitize.extensions", []string{".json", ".yaml", ".yml"})
	v.SetDefault("sanitize.on_error", PolicyContinue)
	v.SetDefault("sanitize.test_org_id", 12345)
	v.SetDefault("sanitize.test_user_id", 99999)
	v.SetDefault("sanitize.test_email", "test@example.com")
	v.SetDefault("sanitize.org_id_fields", DefaultOrgIDFields)
	v.SetDefault("sanitize.user_id_fields", DefaultUserIDFields)
	v.SetDefault("sanitize.email_fields", DefaultEmailFields)
	v.SetDefault("sanitize.name_fields", DefaultNameFields)
	v.SetDefault("sanitize.name_fallback", "Test Value")
	v.SetDefault("sanitize.sanitize_request_body", true)

	v.SetDefault("playback.matching_strategy", "exact")
	v.SetDefault("playback.match_query", false)
	v.SetDefault("playback.not_found_response.status", 404)
	v.SetDefault("playback.not_found_response.body", map[string]interface{}{
		"error": "Recording not found",
	})

	v.SetDefault("export.pretty_print", true)
	v.SetDefault("export.compress", false)
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenHost: "127.0.0.1",
			ListenPort: 8090,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    defaultDBPath(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Convert: ConvertConfig{
			Format:  FormatYAML,
			OnError: PolicyContinue,
		},
		Sanitize: SanitizeConfig{
			Extensions:      []string{".json", ".yaml", ".yml"},
			OnError:         PolicyContinue,
			TestOrgID:       12345,
			TestUserID:      99999,
			TestEmail:       "test@example.com",
			OrgIDFields:     append([]string(nil), DefaultOrgIDFields...),
			UserIDFields:    append([]string(nil), DefaultUserIDFields...),
			EmailFields:     append([]string(nil), DefaultEmailFields...),
			NameFields:      copyNames(DefaultNameFields),
			NameFallback:    "Test Value",
			SanitizeRequest: true,
		},
		Playback: PlaybackConfig{
			MatchingStrategy: "exact",
			NotFoundResponse: NotFoundResponseConfig{
				Status: 404,
				Body:   map[string]interface{}{"error": "Recording not found"},
			},
		},
		Export: ExportConfig{
			PrettyPrint: true,
		},
	}
}

func copyNames(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func validPolicy(p string) bool {
	return p == PolicyContinue || p == PolicyAbort
}

func (c *Config) Validate() error {
	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("invalid server listen_port: %d", c.Server.ListenPort)
	}

	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	switch c.Convert.Format {
	case FormatYAML, FormatJSON, FormatAuto:
	default:
		return fmt.Errorf("invalid convert format: %s (must be 'yaml', 'json' or 'auto')", c.Convert.Format)
	}

	if !validPolicy(c.Convert.OnError) {
		return fmt.Errorf("invalid convert on_error: %s (must be 'continue' or 'abort')", c.Convert.OnError)
	}
	if !validPolicy(c.Sanitize.OnError) {
		return fmt.Errorf("invalid sanitize on_error: %s (must be 'continue' or 'abort')", c.Sanitize.OnError)
	}

	if c.Sanitize.TestOrgID <= 0 || c.Sanitize.TestUserID <= 0 {
		return fmt.Errorf("test_org_id and test_user_id must be positive")
	}
	if !strings.Contains(c.Sanitize.TestEmail, "@") {
		return fmt.Errorf("test_email must contain '@': %q", c.Sanitize.TestEmail)
	}
	if len(c.Sanitize.Extensions) == 0 {
		return fmt.Errorf("at least one fixture extension must be configured")
	}

	switch c.Playback.MatchingStrategy {
	case "exact", "fuzzy":
	default:
		return fmt.Errorf("invalid playback matching_strategy: %s (must be 'exact' or 'fuzzy')", c.Playback.MatchingStrategy)
	}

	return nil
}
