package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/config"
	"github.com/viant/watchdb/engine"
	"github.com/viant/watchdb/kvstore"
	"github.com/viant/watchdb/sqlstore"
	"github.com/viant/watchdb/store"
	"github.com/viant/watchdb/watch"
)

type options struct {
	registry *watch.Registry
	logger   logrus.FieldLogger
}

// Option customises Open.
type Option func(*options)

// WithRegistry shares registry instead of creating one per instance.
func WithRegistry(registry *watch.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithLogger sets the logger of the instance and its registry.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// Open validates cfg and opens the configured backend.
func Open(cfg *config.Config, opts ...Option) (store.Instance, error) {
	if cfg == nil {
		return nil, errors.New("db: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = watch.NewRegistry(o.logger)
	}
	s, err := cfg.Schema()
	if err != nil {
		return nil, err
	}
	path, err := Path(cfg)
	if err != nil {
		return nil, err
	}
	storeOpts := []store.Option{
		store.WithName(cfg.Name),
		store.WithLogger(o.logger),
		store.WithRegistry(o.registry),
	}
	switch cfg.Engine {
	case store.Native:
		return kvstore.Open(path, s, storeOpts...)
	case store.SQL:
		return sqlstore.Open(path, s, storeOpts...)
	}
	return nil, errors.Errorf("db: unknown engine %q", cfg.Engine)
}

// Path returns the database location of cfg, creating its directory.
func Path(cfg *config.Config) (string, error) {
	if cfg.InMemory {
		return engine.Memory, nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return "", errors.Wrapf(err, "db: failed to create %s", cfg.Directory)
	}
	ext := ".sqlite"
	if cfg.Engine == store.Native {
		ext = ".bolt"
	}
	return filepath.Join(cfg.Directory, cfg.Name+ext), nil
}
