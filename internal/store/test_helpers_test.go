package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/connect/internal/ir"
)

func userKeys(resource string) []string {
	if resource == "User" {
		return []string{"email"}
	}
	return nil
}

// createTestRecords opens a record store in a temp directory.
func createTestRecords(t *testing.T, resources ...string) *Records {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	r, err := OpenRecords(Config{Name: "data", Kind: KindSQLite, Path: path, Resources: resources}, userKeys)
	if err != nil {
		t.Fatalf("OpenRecords() failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data._metadata.db")
	j, err := OpenJournal(Config{Name: "data._metadata", Kind: KindSQLite, Path: path})
	if err != nil {
		t.Fatalf("OpenJournal() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func user(id, email, name string) ir.Record {
	attrs := ir.Object{"email": ir.String(email), "name": ir.String(name)}
	return ir.Record{
		ID:         id,
		Resource:   "User",
		Key:        ir.KeyOf([]string{"email"}, attrs),
		Attributes: attrs,
	}
}
