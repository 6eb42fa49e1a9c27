// Package config loads the operator configuration for pdh.
//
// Configuration lives in a single YAML file, by default ~/.config/pdh.yaml,
// and every key can be overridden through a PDH_* environment variable. A
// .env file in the working directory is loaded before the environment is
// read, so throwaway keys never have to land in the shell history.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lorepanichi/pdh/errors"
)

const (
	// maxConfigSize caps the config read so a mistaken path cannot pull
	// gigabytes into memory.
	maxConfigSize = 1 << 20

	// DefaultTimeout bounds every API call unless the config overrides it.
	DefaultTimeout = 30 * time.Second

	// DefaultAPIURL is the public REST API root.
	DefaultAPIURL = "https://api.pagerduty.com"

	// EnvPrefix namespaces the override variables: PDH_APIKEY, PDH_EMAIL,
	// PDH_UID, PDH_API_URL, PDH_RULES_PATH, PDH_TIMEOUT, PDH_LOG_LEVEL.
	EnvPrefix = "PDH"
)

// Config carries everything pdh needs to act on the operator's behalf.
type Config struct {
	APIKey string `yaml:"apikey" validate:"required"`
	Email  string `yaml:"email,omitempty" validate:"omitempty,email"`
	UserID string `yaml:"uid,omitempty"`

	APIURL           string   `yaml:"api_url,omitempty" validate:"omitempty,url"`
	DefaultRulesPath string   `yaml:"default_rules_path,omitempty"`
	Timeout          Duration `yaml:"timeout,omitempty"`
	LogLevel         string   `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// Duration wraps time.Duration so YAML can carry values like "30s" or a
// bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value on line %d", value.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// AsDuration returns the wrapped standard duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Defaults returns a configuration with every optional key set to its
// built-in default. The API key has no default.
func Defaults() *Config {
	return &Config{
		APIURL:   DefaultAPIURL,
		Timeout:  Duration(DefaultTimeout),
		LogLevel: "info",
	}
}

// DefaultPath returns the config file location: $PDH_CONFIG when set,
// otherwise ~/.config/pdh.yaml.
func DefaultPath() string {
	if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "pdh.yaml"
	}
	return filepath.Join(home, ".config", "pdh.yaml")
}

// Loader loads the configuration in layers: built-in defaults, then the
// YAML file, then environment overrides.
type Loader struct {
	path      string
	envPrefix string
}

// NewLoader creates a loader for the given config file. An empty path
// selects DefaultPath.
func NewLoader(path string) *Loader {
	return &Loader{path: path, envPrefix: EnvPrefix}
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load reads, merges and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	path := l.path
	if path == "" {
		path = DefaultPath()
	}

	data, err := safeReadFile(path)
	switch {
	case stderrors.Is(err, os.ErrNotExist):
		return nil, errors.WrapConfig(
			fmt.Errorf("%w: no config file at %s, run `pdh config` to create one",
				errors.ErrMissingConfig, path),
			"Loader", "Load", "read config file")
	case err != nil:
		return nil, errors.WrapConfig(err, "Loader", "Load", "read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfig(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", "parse config file")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.DefaultRulesPath = expandHome(cfg.DefaultRulesPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv(l.envPrefix + "_APIKEY"); val != "" {
		cfg.APIKey = val
	}
	if val := os.Getenv(l.envPrefix + "_EMAIL"); val != "" {
		cfg.Email = val
	}
	if val := os.Getenv(l.envPrefix + "_UID"); val != "" {
		cfg.UserID = val
	}
	if val := os.Getenv(l.envPrefix + "_API_URL"); val != "" {
		cfg.APIURL = val
	}
	if val := os.Getenv(l.envPrefix + "_RULES_PATH"); val != "" {
		cfg.DefaultRulesPath = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv(l.envPrefix + "_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return errors.WrapConfig(
				fmt.Errorf("%w: %s_TIMEOUT: %v", errors.ErrInvalidConfig, l.envPrefix, err),
				"Loader", "applyEnvOverrides", "parse timeout")
		}
		cfg.Timeout = Duration(parsed)
	}
	return nil
}

// validate reports field names by their yaml tag so error messages match
// what the operator actually wrote in the file.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return field.Name
		}
		return tag
	})
	return v
}

// Validate checks the structural rules on the fields plus the semantic
// constraints the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails rule %q", fe.Field(), fe.Tag()))
			}
			return errors.WrapConfig(
				fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(msgs, "; ")),
				"Config", "Validate", "check fields")
		}
		return errors.WrapConfig(err, "Config", "Validate", "check fields")
	}

	if time.Duration(c.Timeout) <= 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: timeout must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check timeout")
	}
	return nil
}

const setupHeader = `# pdh configuration.
#
# apikey:             REST API key (required)
# email:              login email, sent as the acting user on incident actions
# uid:                your user ID, used to scope "pdh inc ls" to your incidents
# api_url:            API root, override for testing only
# default_rules_path: directory searched for rule executables
# timeout:            per-request timeout, e.g. "30s"
# log_level:          debug, info, warn or error
`

// Setup validates cfg and writes it to path, creating the parent
// directory. The file is written mode 0600 since it holds the API key.
func Setup(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapConfig(err, "Config", "Setup", "encode config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.WrapConfig(err, "Config", "Setup", "create config directory")
	}
	out := append([]byte(setupHeader), data...)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errors.WrapConfig(err, "Config", "Setup", "write config file")
	}
	return nil
}

// safeReadFile reads the config file after checking it is a regular file
// of sane size.
func safeReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}
	return os.ReadFile(path)
}

func expandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
