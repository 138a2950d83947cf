package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/checksum"
	"github.com/starford/iceberg/internal/models"
	"github.com/starford/iceberg/internal/outline"
	"github.com/starford/iceberg/internal/storage"
)

// DocumentExt is the suffix of outline documents.
const DocumentExt = ".org"

// maxBody bounds the text kept for searching one attachment.
const maxBody = 64 << 10

// Sources are the folders the catalog mirrors. Documents may be nil.
type Sources struct {
	Attachments *attachment.Store
	Documents   storage.Provider
	Parser      *outline.Parser
}

// Sync brings the catalog up to date with both folders:
//   - attachments not yet catalogued are read and inserted
//   - documents that are new or changed are parsed for references
//   - rows whose files are gone are removed
func Sync(ctx context.Context, db *DB, src Sources, logger *slog.Logger) error {
	if _, err := syncAttachments(ctx, db, src.Attachments, logger); err != nil {
		return err
	}
	if src.Documents == nil {
		return nil
	}
	_, err := syncDocuments(db, src, logger)
	return err
}

// change is one catalog mutation made by a sync pass.
type change struct {
	kind string // created, updated or deleted
	id   string
}

func syncAttachments(ctx context.Context, db *DB, store *attachment.Store, logger *slog.Logger) ([]change, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	known, err := db.AllKeys()
	if err != nil {
		return nil, err
	}

	var out []change
	onDisk := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		onDisk[key] = struct{}{}
		// Keys are never reused, so a catalogued key is up to date.
		if _, ok := known[key]; ok {
			continue
		}
		if err := IndexAttachment(ctx, db, store, key); err != nil {
			logger.Warn("sync: index attachment failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed attachment", slog.String("key", key))
		out = append(out, change{kind: "created", id: key})
	}

	for key := range known {
		if _, ok := onDisk[key]; ok {
			continue
		}
		if err := db.DeleteAttachment(key); err != nil {
			logger.Warn("sync: delete attachment failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale attachment", slog.String("key", key))
		out = append(out, change{kind: "deleted", id: key})
	}
	return out, nil
}

// IndexAttachment reads key from the store and upserts it. Dangling
// metadata is catalogued with an empty checksum.
func IndexAttachment(ctx context.Context, db Catalog, store *attachment.Store, key string) error {
	a, err := store.Fetch(ctx, key)
	if err != nil {
		return err
	}
	content, err := store.Content(ctx, key)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	row := AttachmentRow{
		Key:         a.Key,
		Kind:        string(a.Kind),
		Description: a.Description,
		CreatedAt:   a.Date,
	}
	if content != nil {
		row.Checksum = checksum.Sum(content)
		row.Size = a.Kind.Capability().Size(content)
	}
	return db.UpsertAttachment(row, searchableBody(a.Kind, content))
}

func searchableBody(kind attachment.Kind, content []byte) string {
	switch kind {
	case attachment.KindText, attachment.KindLink, attachment.KindLocation:
	default:
		return ""
	}
	if len(content) > maxBody {
		content = content[:maxBody]
	}
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "")
	}
	return string(content)
}

func syncDocuments(db *DB, src Sources, logger *slog.Logger) ([]change, error) {
	metas, err := src.Documents.List("", DocumentExt)
	if err != nil {
		return nil, err
	}
	checksums, err := db.DocumentChecksums()
	if err != nil {
		return nil, err
	}

	var out []change
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		prev, known := checksums[m.Path]
		if known && prev == m.Checksum {
			continue
		}
		data, err := src.Documents.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexDocument(db, src.Parser, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		kind := "updated"
		if !known {
			kind = "created"
		}
		out = append(out, change{kind: kind, id: m.Path})
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteDocument(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
		out = append(out, change{kind: "deleted", id: p})
	}
	return out, nil
}

// IndexDocument parses data and records its headings count and attachment
// references.
func IndexDocument(db Catalog, p *outline.Parser, path string, data []byte) error {
	if p == nil {
		p = outline.NewParser(outline.Options{})
	}
	d := p.Index(string(data))

	seen := make(map[string]struct{})
	var refs []models.Reference
	for _, r := range d.AttachmentRefs() {
		if _, dup := seen[r.Key]; dup {
			continue
		}
		seen[r.Key] = struct{}{}
		refs = append(refs, models.Reference{Document: path, Key: r.Key, Kind: r.Kind})
	}

	return db.UpsertDocument(models.Document{
		Path:         path,
		Checksum:     checksum.Sum(data),
		HeadingCount: len(d.Headings()),
		UpdatedAt:    time.Now(),
	}, refs)
}
