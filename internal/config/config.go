// Package config provides configuration management for oceanctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultConfigDir  = ".config/oceanctl"
	DefaultConfigFile = "config.yaml"
	DefaultBaseURL    = "http://localhost:8000/api/v1/"
)

// Sentinel errors for configuration operations.
var (
	ErrInvalidKey   = errors.New("invalid configuration key")
	ErrInvalidValue = errors.New("invalid configuration value")
)

// keys maps every dot-notation key to its field, built once from Config.
var keys = buildKeys()

// validate is the shared validator instance.
var validate = validator.New()

// Config represents the full oceanctl configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Keyring KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig holds remote service settings.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// CatalogConfig holds catalog browsing settings.
type CatalogConfig struct {
	DefaultServer string `mapstructure:"default_server" yaml:"default_server"`

	// Direct browses THREDDS servers without going through the service.
	Direct bool `mapstructure:"direct" yaml:"direct"`
}

// JobsConfig holds job polling settings.
type JobsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout" validate:"gte=0"`

	// Journal is the file holding jobs submitted from this machine.
	Journal string `mapstructure:"journal" yaml:"journal" validate:"required"`
}

// KeyringConfig selects where secrets are stored.
type KeyringConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=keychain secret-service kwallet wincred pass file"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json logfmt"`
}

// MetricsConfig holds metrics exposition settings. An empty address disables
// the endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// Validate checks the configuration for errors using struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Loader provides configuration loading and saving.
type Loader struct {
	v       *viper.Viper
	path    string
	homeDir string
}

// NewLoader creates a new configuration loader.
func NewLoader() (*Loader, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}

	configPath := filepath.Join(home, DefaultConfigDir, DefaultConfigFile)

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("OCEANCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("api.base_url", "OCEANCTL_API_URL")
	//nolint:errcheck // BindEnv only fails with zero arguments
	v.BindEnv("catalog.default_server", "OCEANCTL_SERVER")

	l := &Loader{
		v:       v,
		path:    configPath,
		homeDir: home,
	}
	l.setDefaults()

	return l, nil
}

// setDefaults sets all default configuration values using Viper.
func (l *Loader) setDefaults() {
	l.v.SetDefault("api.base_url", DefaultBaseURL)
	l.v.SetDefault("api.timeout", "30s")
	l.v.SetDefault("catalog.default_server", "")
	l.v.SetDefault("catalog.direct", false)
	l.v.SetDefault("jobs.poll_interval", "5s")
	l.v.SetDefault("jobs.poll_timeout", "30m")
	l.v.SetDefault("jobs.journal", "~/.local/share/oceanctl/jobs.json")
	l.v.SetDefault("keyring.backend", "")
	l.v.SetDefault("keyring.file_dir", "~/.local/share/oceanctl/keyring")
	l.v.SetDefault("log.format", "text")
	l.v.SetDefault("metrics.addr", "")
}

// Load reads the configuration file, creating defaults if it doesn't exist.
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		if err := l.createDefault(); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Keyring.FileDir = l.expandPath(cfg.Keyring.FileDir)
	cfg.Jobs.Journal = l.expandPath(cfg.Jobs.Journal)

	return &cfg, nil
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Get returns a configuration value by dot-notation key.
func (l *Loader) Get(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return l.v.Get(key), nil
}

// Set validates value against the constraints of key and writes it to the
// configuration file.
func (l *Loader) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	f, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %s is a section", ErrInvalidKey, key)
	}

	typed, err := f.parse(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
	}
	if f.rule != "" {
		if err := validate.Var(typed, f.rule); err != nil {
			return fmt.Errorf("%w: %s=%q (%s)", ErrInvalidValue, key, value, f.rule)
		}
	}

	// Durations stay in their string form so the file remains readable.
	if f.kind == durationType {
		l.v.Set(key, value)
	} else {
		l.v.Set(key, typed)
	}
	return l.v.WriteConfig()
}

// createDefault writes the default configuration file using Viper.
func (l *Loader) createDefault() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return l.v.SafeWriteConfigAs(l.path)
}

// expandPath replaces ~ with the home directory.
func (l *Loader) expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(l.homeDir, path[2:])
	}
	if path == "~" {
		return l.homeDir
	}
	return path
}

// ValidateKey checks if a key is a valid configuration key. Section names
// such as "api" are valid for Get.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if _, ok := keys[key]; ok {
		return nil
	}
	if sectionOf(key) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidKey, key)
}

// Keys returns every settable key in declaration order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	addKeys(reflect.TypeOf(Config{}), "", func(k string, _ field) { out = append(out, k) })
	return out
}

func sectionOf(key string) bool {
	for k := range keys {
		if strings.HasPrefix(k, key+".") {
			return true
		}
	}
	return false
}

// field describes a settable leaf of Config.
type field struct {
	kind reflect.Type
	rule string
}

var durationType = reflect.TypeOf(time.Duration(0))

// parse converts a command-line value to the field's Go type.
func (f field) parse(value string) (any, error) {
	switch {
	case f.kind == durationType:
		return time.ParseDuration(value)
	case f.kind.Kind() == reflect.Bool:
		return strconv.ParseBool(value)
	case f.kind.Kind() == reflect.Int:
		return strconv.Atoi(value)
	}
	return value, nil
}

// buildKeys builds the set of valid keys from Config using reflection.
func buildKeys() map[string]field {
	out := make(map[string]field)
	addKeys(reflect.TypeOf(Config{}), "", func(k string, f field) { out[k] = f })
	return out
}

// addKeys walks the leaves of struct type t.
func addKeys(t reflect.Type, prefix string, visit func(string, field)) {
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if sf.Type.Kind() == reflect.Struct {
			addKeys(sf.Type, key, visit)
			continue
		}
		visit(key, field{kind: sf.Type, rule: sf.Tag.Get("validate")})
	}
}
