package catalog

import "github.com/starford/iceberg/internal/models"

// Catalog defines the catalog operations consumers depend on.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Catalog interface {
	UpsertAttachment(a AttachmentRow, body string) error
	DeleteAttachment(key string) error
	GetAttachment(key string) (*AttachmentRow, error)
	ListAttachments(limit, offset int, kind string) ([]AttachmentRow, int, error)
	AllKeys() (map[string]struct{}, error)
	UpsertDocument(d models.Document, refs []models.Reference) error
	DeleteDocument(path string) error
	DocumentChecksums() (map[string]string, error)
	GetDocumentChecksum(path string) (string, error)
	Referrers(key string) ([]models.Reference, error)
	Dangling() ([]models.Reference, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
