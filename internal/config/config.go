// Package config loads the CLI configuration from a YAML file, an optional
// .env file and FORMFLOW_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the file.
const (
	EnvAPIBaseURL = "FORMFLOW_API_BASE_URL"
	EnvAPIToken   = "FORMFLOW_API_TOKEN"
	EnvTenant     = "FORMFLOW_TENANT"
	EnvPlacesKey  = "FORMFLOW_PLACES_KEY"
	EnvLogLevel   = "FORMFLOW_LOG_LEVEL"
	EnvLogFormat  = "FORMFLOW_LOG_FORMAT"
)

// DefaultDotEnv is looked up next to the working directory.
const DefaultDotEnv = ".env"

// Config is the resolved configuration.
type Config struct {
	API     API     `yaml:"api" json:"api"`
	Places  Places  `yaml:"places" json:"places"`
	Log     Log     `yaml:"log" json:"log"`
	Wizards Wizards `yaml:"wizards" json:"wizards"`
}

// API configures the backend client.
type API struct {
	BaseURL      string        `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	Token        string        `yaml:"token" json:"token"`
	Tenant       string        `yaml:"tenant" json:"tenant"`
	TenantHeader string        `yaml:"tenant_header" json:"tenant_header"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// Places configures the address lookup provider.
type Places struct {
	BaseURL string        `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	Key     string        `yaml:"key" json:"key"`
	Delay   time.Duration `yaml:"delay" json:"delay" validate:"gte=0"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

// Wizards points at extra definition files loaded on top of the built-ins.
type Wizards struct {
	Dir       string `yaml:"dir" json:"dir"`
	Templates string `yaml:"templates" json:"templates"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		API: API{Timeout: 30 * time.Second},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Options tunes Load.
type Options struct {
	// Path of the YAML file. Empty skips the file.
	Path string
	// DotEnv is the .env file; empty means DefaultDotEnv. A missing file is
	// not an error.
	DotEnv string
	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves the configuration and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(opts.Path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	dotenv, err := readDotEnv(opts.DotEnv)
	if err != nil {
		return Config{}, err
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	getenv := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	applyEnv(&cfg, getenv)

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultDotEnv
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("config: dotenv %s: %w", path, err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: dotenv %s: %w", path, err)
	}
	return values, nil
}

func applyEnv(cfg *Config, getenv func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := getenv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvAPIBaseURL, &cfg.API.BaseURL)
	set(EnvAPIToken, &cfg.API.Token)
	set(EnvTenant, &cfg.API.Tenant)
	set(EnvPlacesKey, &cfg.Places.Key)
	set(EnvLogLevel, &cfg.Log.Level)
	set(EnvLogFormat, &cfg.Log.Format)
}

// SlogLevel maps the configured level name.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, translator)

	// report yaml keys instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks struct tags and reports every failing key.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validate: %w", err)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s: %s", keyPath(fe.Namespace()), fe.Translate(translator)))
	}
	sort.Strings(messages)
	return fmt.Errorf("config: invalid configuration: %s", strings.Join(messages, "; "))
}

// keyPath drops the root struct name from a validator namespace.
func keyPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
