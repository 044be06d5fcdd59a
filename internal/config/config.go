// Package config loads and validates relatio configuration.
//
// Values are layered: built-in defaults, then a YAML file, then CLI flag
// overrides applied by the caller. The result is validated with struct tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/relatio-go/internal/graph"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "relatio.yaml"

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete relatio configuration.
type Config struct {
	Namespaces      Namespaces `yaml:"namespaces"`
	LinkBase        bool       `yaml:"link_base"`
	MissingEndpoint string     `yaml:"missing_endpoint" validate:"required,oneof=fill drop"`
	Workers         int        `yaml:"workers" validate:"min=0,max=1024"`
	Output          string     `yaml:"output" validate:"required"`
	Format          string     `yaml:"format" validate:"omitempty,oneof=turtle trig ntriples nquads jsonld"`
	Enrichment      Enrichment `yaml:"enrichment"`
	Wikidata        Wikidata   `yaml:"wikidata"`
	Log             Log        `yaml:"log"`
}

// Namespaces holds the namespace IRIs instances are created in.
type Namespaces struct {
	Base    string `yaml:"base" validate:"required,url"`
	HighDim string `yaml:"highdim" validate:"required,url"`
	LowDim  string `yaml:"lowdim" validate:"required,url"`
}

// Enrichment selects the external knowledge sources run after a build.
type Enrichment struct {
	Enabled bool     `yaml:"enabled"`
	Sources []string `yaml:"sources" validate:"dive,oneof=spans wikidata"`
}

// Wikidata configures the Wikidata search client.
type Wikidata struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	Language    string        `yaml:"language" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" validate:"min=0"`
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=50"`
	MaxRetries  int           `yaml:"max_retries" validate:"min=0,max=10"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Namespaces: Namespaces{
			Base:    graph.NamespaceBase,
			HighDim: graph.NamespaceBase,
			LowDim:  graph.NamespaceLowDim,
		},
		MissingEndpoint: "fill",
		Output:          "triplestore.nq",
		Enrichment: Enrichment{
			Sources: []string{"spans"},
		},
		Wikidata: Wikidata{
			BaseURL:     "https://www.wikidata.org/w/api.php",
			Language:    "en",
			Timeout:     10 * time.Second,
			Concurrency: 5,
			MaxRetries:  3,
		},
		Log: Log{
			Level:       "info",
			Development: true,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. A missing file is not an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be an absolute IRI", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
