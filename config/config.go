package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Parse.
const (
	DefaultEngine        = store.SQL
	DefaultDirectory     = "."
	DefaultLogLevel      = "info"
	DefaultSubjectPrefix = "watchdb"
	DefaultMaxReconnect  = 10
	DefaultReconnectWait = 2 * time.Second
)

// Config describes one instance.
type Config struct {
	Name        string               `yaml:"name"`
	Engine      string               `yaml:"engine"`
	Directory   string               `yaml:"directory"`
	InMemory    bool                 `yaml:"inMemory"`
	Logging     LoggingConfig        `yaml:"logging"`
	NATS        NATSConfig           `yaml:"nats"`
	Collections []*schema.Collection `yaml:"collections"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NATSConfig configures the optional change sink; an empty URL disables it.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	MaxReconnect  int           `yaml:"maxReconnect"`
	ReconnectWait time.Duration `yaml:"reconnectWait"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes data, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.Directory == "" {
		c.Directory = DefaultDirectory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.NATS.MaxReconnect == 0 {
		c.NATS.MaxReconnect = DefaultMaxReconnect
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = DefaultReconnectWait
	}
	for _, collection := range c.Collections {
		if collection != nil && !collection.Embedded && collection.IDName == "" {
			collection.IDName = schema.DefaultIDName
		}
	}
}

// Validate checks the settings and the collection schemas.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: name is required")
	}
	switch c.Engine {
	case store.SQL:
	case store.Native:
		if c.InMemory {
			return errors.Errorf("config: inMemory is not supported by the %s engine", c.Engine)
		}
	default:
		return errors.Errorf("config: unknown engine %q", c.Engine)
	}
	if _, err := c.LogLevel(); err != nil {
		return errors.WithMessage(err, "config: logging.level")
	}
	if _, err := c.Schema(); err != nil {
		return errors.WithMessage(err, "config")
	}
	return nil
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (logrus.Level, error) {
	return logrus.ParseLevel(c.Logging.Level)
}

// Schema builds and validates the schema of the configured collections.
func (c *Config) Schema() (*schema.Schema, error) {
	return schema.New(c.Collections...)
}
