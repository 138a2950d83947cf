// Package storage defines the flat-folder file-system abstraction.
package storage

import (
	"io"
	"io/fs"

	"github.com/starford/iceberg/internal/models"
)

// Provider is the interface for file operations under a single root.
type Provider interface {
	// Root returns the absolute path of the storage root.
	Root() string
	// List returns metadata for every file under dir whose name ends with ext.
	// An empty ext matches every file.
	List(dir, ext string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// WriteFrom atomically streams r to path and returns the bytes written.
	WriteFrom(path string, r io.Reader) (int64, error)
	// Stat returns file info for path (relative to root).
	Stat(path string) (fs.FileInfo, error)
	// Delete removes the file at path (relative to root).
	Delete(path string) error
}

var _ Provider = (*FS)(nil)
