package store

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/watch"
)

// Backend names.
const (
	Native = "native"
	SQL    = "sqlite"
)

// Options are the settings shared by both backends.
type Options struct {
	Name     string
	Logger   logrus.FieldLogger
	Registry *watch.Registry
}

// Option mutates Options.
type Option func(*Options)

// WithName sets the instance name.
func WithName(name string) Option { return func(o *Options) { o.Name = name } }

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option { return func(o *Options) { o.Logger = logger } }

// WithRegistry injects the watcher registry, letting callers register
// watchers before the instance opens.
func WithRegistry(registry *watch.Registry) Option {
	return func(o *Options) { o.Registry = registry }
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) *Options {
	o := &Options{Name: "default"}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Registry == nil {
		o.Registry = watch.NewRegistry(o.Logger)
	}
	return o
}
