// Package config loads the YAML description of a watchdb instance: its
// backend, storage location, logging, NATS sink and collection schemas.
package config
