// Package config loads and resolves coordinator configuration.
//
// A configuration is resolved once, against the coordinator's name, and is
// treated as immutable afterwards:
//
//	name: app
//	location: /var/lib/app        # base directory, default: user cache dir + /connect
//	schema: model.cue
//	max_concurrency: 8
//	stores:
//	  - name: users
//	    kind: sqlite              # sqlite | memory
//	    resources: [User]
//	    overwrite_incompatible: false
//	    options:
//	      cache_size: "-4000"     # applied as PRAGMA cache_size = -4000
//	wal:
//	  enabled: true
//	  kind: sqlite                # sqlite | pebble | memory
//	notify:
//	  kafka:
//	    brokers: [localhost:9092]
//	    topic: connect.actions
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/connect/internal/store"
	"github.com/roach88/connect/internal/wal"
)

const (
	// MetadataSuffix is appended to the coordinator name for the WAL's store.
	MetadataSuffix = "._metadata"

	// DefaultTopicSuffix is appended to the coordinator name when Kafka
	// brokers are configured without a topic.
	DefaultTopicSuffix = ".actions"
)

// StoreConfiguration describes one record store.
type StoreConfiguration struct {
	Name                  string            `yaml:"name"`
	Kind                  store.Kind        `yaml:"kind,omitempty"`
	Location              string            `yaml:"location,omitempty"`
	OverwriteIncompatible bool              `yaml:"overwrite_incompatible,omitempty"`
	Resources             []string          `yaml:"resources,omitempty"`
	Options               map[string]string `yaml:"options,omitempty"`
}

// StoreConfig converts to the store package's form.
func (s StoreConfiguration) StoreConfig() store.Config {
	return store.Config{
		Name:                  s.Name,
		Kind:                  s.Kind,
		Path:                  s.Location,
		OverwriteIncompatible: s.OverwriteIncompatible,
		Pragmas:               s.Options,
		Resources:             s.Resources,
	}
}

// WALConfiguration controls the transaction log.
type WALConfiguration struct {
	// Enabled defaults to true; a nil value counts as enabled.
	Enabled  *bool    `yaml:"enabled,omitempty"`
	Kind     wal.Kind `yaml:"kind,omitempty"`
	Location string   `yaml:"location,omitempty"`
}

// IsEnabled reports whether the WAL should be attached.
func (w WALConfiguration) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// KafkaConfiguration enables the Kafka event sink when Brokers is non-empty.
type KafkaConfiguration struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// NotifyConfiguration groups event sinks.
type NotifyConfiguration struct {
	Kafka KafkaConfiguration `yaml:"kafka,omitempty"`
}

// Configuration is the full coordinator configuration.
type Configuration struct {
	Name           string               `yaml:"name,omitempty"`
	Location       string               `yaml:"location,omitempty"`
	Schema         string               `yaml:"schema,omitempty"`
	MaxConcurrency int                  `yaml:"max_concurrency,omitempty"`
	Stores         []StoreConfiguration `yaml:"stores,omitempty"`
	WAL            WALConfiguration     `yaml:"wal,omitempty"`
	Notify         NotifyConfiguration  `yaml:"notify,omitempty"`
}

// Load reads a configuration file. Unknown fields are rejected.
// Relative schema and location paths are resolved against the file's directory.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Configuration
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	base := filepath.Dir(path)
	cfg.Schema = relativeTo(base, cfg.Schema)
	cfg.Location = relativeTo(base, cfg.Location)
	for i := range cfg.Stores {
		cfg.Stores[i].Location = relativeTo(base, cfg.Stores[i].Location)
	}
	cfg.WAL.Location = relativeTo(base, cfg.WAL.Location)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func relativeTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (c *Configuration) validate() error {
	seen := make(map[string]bool)
	for i, s := range c.Stores {
		if s.Name == "" {
			return fmt.Errorf("stores[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("stores[%d]: duplicate store name %q", i, s.Name)
		}
		seen[s.Name] = true
		switch s.Kind {
		case "", store.KindSQLite, store.KindMemory:
		default:
			return fmt.Errorf("stores[%d]: unknown kind %q", i, s.Kind)
		}
	}
	switch c.WAL.Kind {
	case "", wal.KindSQLite, wal.KindPebble, wal.KindMemory:
	default:
		return fmt.Errorf("wal: unknown kind %q", c.WAL.Kind)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative")
	}
	return nil
}

// DefaultBase returns the base directory for unset locations.
func DefaultBase() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "connect")
}

// DefaultLocation returns the directory holding the stores of coordinator name.
func DefaultLocation(base, name string) string {
	return filepath.Join(base, name)
}

// Resolved returns a copy with every unset location filled in for the
// coordinator called name. With no stores configured, one store named after
// the coordinator holds every resource.
func (c Configuration) Resolved(name string) Configuration {
	out := c
	out.Name = name
	if out.Location == "" {
		out.Location = DefaultBase()
	}
	dir := DefaultLocation(out.Location, name)

	out.Stores = make([]StoreConfiguration, 0, len(c.Stores))
	for _, s := range c.Stores {
		out.Stores = append(out.Stores, resolveStore(s, dir))
	}
	if len(out.Stores) == 0 {
		out.Stores = append(out.Stores, resolveStore(StoreConfiguration{Name: name}, dir))
	}

	if len(out.Notify.Kafka.Brokers) > 0 && out.Notify.Kafka.Topic == "" {
		out.Notify.Kafka.Topic = name + DefaultTopicSuffix
	}
	out.Notify.Kafka.Brokers = append([]string(nil), c.Notify.Kafka.Brokers...)

	if out.WAL.Kind == "" {
		out.WAL.Kind = wal.KindSQLite
	}
	if out.WAL.Location == "" && out.WAL.Kind != wal.KindMemory {
		ext := ".sqlite"
		if out.WAL.Kind == wal.KindPebble {
			ext = ".pebble"
		}
		out.WAL.Location = filepath.Join(dir, name+MetadataSuffix+ext)
	}
	return out
}

func resolveStore(s StoreConfiguration, dir string) StoreConfiguration {
	if s.Kind == "" {
		s.Kind = store.KindSQLite
	}
	if s.Location == "" && s.Kind != store.KindMemory {
		s.Location = filepath.Join(dir, s.Name+".sqlite")
	}
	s.Resources = append([]string(nil), s.Resources...)
	if s.Options != nil {
		opts := make(map[string]string, len(s.Options))
		for k, v := range s.Options {
			opts[k] = v
		}
		s.Options = opts
	}
	return s
}

// MetaStoreConfiguration returns the internally managed configuration of the
// WAL's metadata store. It always overwrites incompatible files.
func (c Configuration) MetaStoreConfiguration() wal.Config {
	return wal.Config{
		Name:                  c.Name + MetadataSuffix,
		Kind:                  c.WAL.Kind,
		Path:                  c.WAL.Location,
		OverwriteIncompatible: true,
	}
}
