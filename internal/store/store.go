package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed records.sql
var recordsSQL string

//go:embed journal.sql
var journalSQL string

// Layout versions stored in PRAGMA user_version. A database reporting a
// higher version was written by an incompatible build.
const (
	recordsSchemaVersion = 1
	journalSchemaVersion = 1
)

// ErrNotFound is returned when a record or transaction does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrIncompatible is returned when an existing database cannot be used and
// overwriting it was not allowed.
var ErrIncompatible = errors.New("store: incompatible database")

// Kind selects the storage backend.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

// Config describes one database to open.
type Config struct {
	// Name identifies the store in logs and errors.
	Name string

	// Kind is KindSQLite (default) or KindMemory.
	Kind Kind

	// Path is the database file. Ignored for KindMemory.
	Path string

	// OverwriteIncompatible recreates a database that cannot be opened or
	// was written with a newer layout.
	OverwriteIncompatible bool

	// Pragmas are applied after the required ones, in key order.
	Pragmas map[string]string

	// Resources lists the resource types this store holds. Empty means
	// every resource not claimed by another store.
	Resources []string
}

var pragmaName = regexp.MustCompile(`^[a-z_]+$`)

// open creates or opens a SQLite database and brings its layout to version.
//
// An unusable file is removed and recreated when cfg.OverwriteIncompatible
// is set, otherwise ErrIncompatible is returned.
func open(cfg Config, layout string, version int) (*sql.DB, error) {
	db, err := openDB(cfg, layout, version)
	if err == nil || !errors.Is(err, ErrIncompatible) {
		return db, err
	}
	if !cfg.OverwriteIncompatible || cfg.Kind == KindMemory {
		return nil, err
	}

	slog.Warn("recreating incompatible database", "store", cfg.Name, "path", cfg.Path, "error", err)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if rmErr := os.Remove(cfg.Path + suffix); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove %s: %w", cfg.Path+suffix, rmErr)
		}
	}
	return openDB(cfg, layout, version)
}

func openDB(cfg Config, layout string, version int) (*sql.DB, error) {
	if cfg.Kind != KindMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. For memory databases the
	// single connection also keeps the database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var tables int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&tables); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}

	if err := applyPragmas(db, cfg.Pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, layout, version); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func dsn(cfg Config) string {
	if cfg.Kind == KindMemory {
		return fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", cfg.Name, uuid.NewString())
	}
	return cfg.Path
}

// applyPragmas sets the required SQLite configuration, then the extra pragmas.
func applyPragmas(db *sql.DB, extra map[string]string) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !pragmaName.MatchString(strings.ToLower(name)) {
			return fmt.Errorf("invalid pragma name %q", name)
		}
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA %s = %s", strings.ToLower(name), extra[name]))
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and records the layout version.
func applySchema(db *sql.DB, layout string, version int) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("%w: get user_version: %v", ErrIncompatible, err)
	}
	if current > version {
		return fmt.Errorf("%w: layout version %d, supported %d", ErrIncompatible, current, version)
	}

	if _, err := db.Exec(layout); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if current < version {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
