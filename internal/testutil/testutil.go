// Package testutil provides shared test helpers for setting up attachment
// stores, document folders and catalogs.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/catalog"
	"github.com/starford/iceberg/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "iceberg-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates an attachment store in a temporary folder.
func TestStore(t *testing.T, opts ...attachment.StoreOption) *attachment.Store {
	t.Helper()
	s, err := attachment.NewStore(t.TempDir(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// TestDocuments creates a temporary documents directory with a
// storage.Provider.
func TestDocuments(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	docs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, docs
}
