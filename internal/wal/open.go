package wal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/connect/internal/store"
)

// Kind selects the journal backend.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindPebble Kind = "pebble"
	KindMemory Kind = "memory"
)

// Config describes the metadata store backing the WAL.
type Config struct {
	Name                  string
	Kind                  Kind
	Path                  string
	OverwriteIncompatible bool
}

// OpenJournal opens the journal described by cfg.
func OpenJournal(cfg Config) (Journal, error) {
	var (
		j   Journal
		err error
	)
	switch cfg.Kind {
	case KindSQLite, "":
		j, err = openStoreJournal(store.Config{
			Name:                  cfg.Name,
			Kind:                  store.KindSQLite,
			Path:                  cfg.Path,
			OverwriteIncompatible: cfg.OverwriteIncompatible,
		})
	case KindMemory:
		j, err = openStoreJournal(store.Config{Name: cfg.Name, Kind: store.KindMemory})
	case KindPebble:
		j, err = openPebble(cfg)
	default:
		return nil, fmt.Errorf("unknown journal kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func openStoreJournal(cfg store.Config) (Journal, error) {
	j, err := store.OpenJournal(cfg)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func openPebble(cfg Config) (Journal, error) {
	j, err := OpenPebbleJournal(cfg.Name, cfg.Path)
	if err != nil && cfg.OverwriteIncompatible && errors.Is(err, store.ErrIncompatible) {
		slog.Warn("recreating incompatible journal", "store", cfg.Name, "path", cfg.Path, "error", err)
		if rmErr := os.RemoveAll(cfg.Path); rmErr != nil {
			return nil, fmt.Errorf("remove %s: %w", cfg.Path, rmErr)
		}
		j, err = OpenPebbleJournal(cfg.Name, cfg.Path)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Open opens the journal described by cfg and wraps it in a WAL.
func Open(cfg Config, opts ...Option) (*WAL, error) {
	j, err := OpenJournal(cfg)
	if err != nil {
		return nil, err
	}
	return New(j, opts...), nil
}
