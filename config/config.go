// Package config loads aitetsu settings from a YAML file and the
// environment, in that order, and validates the result. Command-line flags
// are applied on top by the caller before Validate.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	BackendOpenAI = "openai"
	BackendGollm  = "gollm"

	DefaultModel   = "qwen/qwen3-235b-a22b"
	DefaultBaseURL = "https://openrouter.ai/api/v1"
)

// Config holds every runtime setting.
type Config struct {
	Model          string        `yaml:"model" env:"AITETSU_MODEL" validate:"required"`
	APIKey         string        `yaml:"api_key" env:"OPENROUTER_API_KEY" validate:"required"`
	BaseURL        string        `yaml:"base_url" env:"AITETSU_BASE_URL" validate:"required,url"`
	Backend        string        `yaml:"backend" env:"AITETSU_BACKEND" validate:"oneof=openai gollm"`
	Temperature    float64       `yaml:"temperature" env:"AITETSU_TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens      int           `yaml:"max_tokens" env:"AITETSU_MAX_TOKENS" validate:"gte=0"`
	MaxSteps       int           `yaml:"max_steps" env:"AITETSU_MAX_STEPS" validate:"gte=1"`
	LoopWindow     int           `yaml:"loop_window" env:"AITETSU_LOOP_WINDOW" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"AITETSU_REQUEST_TIMEOUT" validate:"gt=0"`
	WorkingDir     string        `yaml:"working_dir" env:"AITETSU_WORKING_DIR"`
	Verbose        bool          `yaml:"verbose" env:"AITETSU_VERBOSE"`
}

// Default returns the built-in settings. APIKey is left empty.
func Default() Config {
	return Config{
		Model:          DefaultModel,
		BaseURL:        DefaultBaseURL,
		Backend:        BackendOpenAI,
		Temperature:    0,
		MaxSteps:       25,
		LoopWindow:     6,
		RequestTimeout: 5 * time.Minute,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/aitetsu/config.yaml, falling back to
// the platform config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		d, err := os.UserConfigDir()
		if err != nil {
			return ""
		}
		dir = d
	}
	return filepath.Join(dir, "aitetsu", "config.yaml")
}

// Options controls Load.
type Options struct {
	// Path is the YAML file to read. When empty, DefaultPath is tried and a
	// missing file is not an error.
	Path string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
}

// Load builds a Config from defaults, the YAML file and the environment.
// The result is not validated.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: opts.Environ}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks ranges and required fields and resolves WorkingDir to an
// absolute path.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}

	dir := c.WorkingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("config: working_dir: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("config: working_dir: %w", err)
	}
	c.WorkingDir = abs
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if field == "api_key" {
			return "api_key is required (set OPENROUTER_API_KEY)"
		}
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
