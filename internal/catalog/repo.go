package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/models"
)

// AttachmentRow represents a row in the attachments table.
type AttachmentRow struct {
	Key         string
	Kind        string
	Description string
	Checksum    string
	Size        int64
	CreatedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Key         string
	Kind        string
	Description string
	Snippet     string
}

// UpsertAttachment inserts or replaces an attachment row and its FTS entry.
// body is the searchable text of the content; empty for binary kinds.
func (db *DB) UpsertAttachment(a AttachmentRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO attachments (key, kind, description, body, checksum, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind        = excluded.kind,
			description = excluded.description,
			body        = excluded.body,
			checksum    = excluded.checksum,
			size        = excluded.size,
			created_at  = excluded.created_at
	`, a.Key, a.Kind, a.Description, body, a.Checksum, a.Size, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("catalog: upsert attachment: %w", err)
	}

	// No-op when the FTS5 tag is absent.
	if err := ftsUpsert(tx, a.Key, a.Kind, a.Description, body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAttachment removes an attachment row and its FTS entry. References
// from documents are kept so dangling references can be reported.
func (db *DB) DeleteAttachment(key string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, key)
	if _, err := tx.Exec(`DELETE FROM attachments WHERE key = ?`, key); err != nil {
		return fmt.Errorf("catalog: delete attachment: %w", err)
	}
	return tx.Commit()
}

// GetAttachment returns one attachment row or apperr.ErrNotFound.
func (db *DB) GetAttachment(key string) (*AttachmentRow, error) {
	var a AttachmentRow
	err := db.conn.QueryRow(`
		SELECT key, kind, description, checksum, size, created_at
		FROM attachments WHERE key = ?
	`, key).Scan(&a.Key, &a.Kind, &a.Description, &a.Checksum, &a.Size, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get attachment: %w", err)
	}
	return &a, nil
}

// ListAttachments returns a page of attachments, newest first, optionally
// filtered by kind, and the total number of matching rows.
func (db *DB) ListAttachments(limit, offset int, kind string) ([]AttachmentRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`
		SELECT count(*) FROM attachments WHERE (? = '' OR kind = ?)
	`, kind, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count attachments: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT key, kind, description, checksum, size, created_at
		FROM attachments
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC, key
		LIMIT ? OFFSET ?
	`, kind, kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list attachments: %w", err)
	}
	defer rows.Close()

	out := []AttachmentRow{}
	for rows.Next() {
		var a AttachmentRow
		if err := rows.Scan(&a.Key, &a.Kind, &a.Description, &a.Checksum, &a.Size, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// AllKeys returns every catalogued attachment key.
func (db *DB) AllKeys() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT key FROM attachments`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all keys: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

// UpsertDocument records a document and replaces its outgoing references.
func (db *DB) UpsertDocument(d models.Document, refs []models.Reference) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, heading_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum      = excluded.checksum,
			heading_count = excluded.heading_count,
			updated_at    = excluded.updated_at
	`, d.Path, d.Checksum, d.HeadingCount, d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("catalog: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM refs WHERE document = ?`, d.Path); err != nil {
		return fmt.Errorf("catalog: clear refs: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (document, key, kind) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("catalog: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.Exec(d.Path, r.Key, r.Kind); err != nil {
				return fmt.Errorf("catalog: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its outgoing references.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM refs WHERE document = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// DocumentChecksums maps every catalogued document path to its checksum.
func (db *DB) DocumentChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("catalog: document checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// GetDocumentChecksum returns the stored checksum for a document, or "" if
// it is not catalogued.
func (db *DB) GetDocumentChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: document checksum: %w", err)
	}
	return cs, nil
}

// Referrers returns the references to key, ordered by document path.
func (db *DB) Referrers(key string) ([]models.Reference, error) {
	rows, err := db.conn.Query(`
		SELECT document, key, kind FROM refs WHERE key = ? ORDER BY document
	`, key)
	if err != nil {
		return nil, fmt.Errorf("catalog: referrers: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

// Dangling returns references whose key is not in the catalog.
func (db *DB) Dangling() ([]models.Reference, error) {
	rows, err := db.conn.Query(`
		SELECT r.document, r.key, r.kind
		FROM refs r
		LEFT JOIN attachments a ON a.key = r.key
		WHERE a.key IS NULL
		ORDER BY r.document, r.key
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: dangling: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

func scanRefs(rows *sql.Rows) ([]models.Reference, error) {
	out := []models.Reference{}
	for rows.Next() {
		var r models.Reference
		if err := rows.Scan(&r.Document, &r.Key, &r.Kind); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
