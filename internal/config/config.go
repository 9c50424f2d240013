package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"checkline/internal/domain"
)

// DefaultProducerVersion is stamped into app.lastSavedWith on export.
const DefaultProducerVersion = "1.0.0"

// Config models checkline.yml.
type Config struct {
	Template struct {
		Sections []TemplateSection `yaml:"sections"`
	} `yaml:"template"`
	Attachments struct {
		Max int `yaml:"max"`
	} `yaml:"attachments"`
	Export struct {
		ProducerVersion string `yaml:"producer_version"`
	} `yaml:"export"`
}

// TemplateSection seeds one section of a new document.
type TemplateSection struct {
	Title string   `yaml:"title"`
	Items []string `yaml:"items"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Template.Sections) == 0 {
		return fmt.Errorf("config.template.sections is required")
	}
	for i, s := range c.Template.Sections {
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("template section %d has empty title", i+1)
		}
		for j, it := range s.Items {
			if strings.TrimSpace(it) == "" {
				return fmt.Errorf("template section %s item %d is empty", s.Title, j+1)
			}
		}
	}
	if c.Attachments.Max < 0 || c.Attachments.Max > domain.MaxAttachments {
		return fmt.Errorf("config.attachments.max must be between 0 (default) and %d", domain.MaxAttachments)
	}
	return nil
}

// MaxAttachments returns the configured cap, never above domain.MaxAttachments.
func (c *Config) MaxAttachments() int {
	if c == nil || c.Attachments.Max <= 0 || c.Attachments.Max > domain.MaxAttachments {
		return domain.MaxAttachments
	}
	return c.Attachments.Max
}

// ProducerVersion returns the tag written on export.
func (c *Config) ProducerVersion() string {
	if c == nil || strings.TrimSpace(c.Export.ProducerVersion) == "" {
		return DefaultProducerVersion
	}
	return c.Export.ProducerVersion
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `template:
  sections:
    - title: "Servizi Ausiliari Corrente Alternata"
      items: ["Ispezione e pulizia"]
    - title: "Servizi Ausiliari Corrente Continua"
      items: ["Ispezione e pulizia"]
    - title: "Blindati M.T."
      items: ["Ispezione e pulizia"]
    - title: "S.O.D."
      items: ["Ispezione e pulizia"]
    - title: "Sgrigliatore"
      items: ["Ispezione e pulizia"]

attachments:
  max: 3

export:
  producer_version: "1.0.0"
`
