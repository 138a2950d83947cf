// Package attachservice coordinates the attachment store, the catalog and
// change notifications behind one API used by the HTTP and MCP layers.
package attachservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/catalog"
	"github.com/starford/iceberg/internal/checksum"
	"github.com/starford/iceberg/internal/models"
	"github.com/starford/iceberg/internal/outline"
)

// AttachmentDetail is the full representation of an attachment.
type AttachmentDetail struct {
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Reference   string    `json:"reference"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Rendered    string    `json:"rendered,omitempty"`
	Dangling    bool      `json:"dangling,omitempty"`
}

// AttachmentListItem is a lightweight item in a list response.
type AttachmentListItem struct {
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Reference   string    `json:"reference"`
	Size        int64     `json:"size"`
	Date        time.Time `json:"date"`
}

// Service coordinates store, catalog and event operations.
type Service struct {
	store   *attachment.Store
	db      catalog.Catalog
	parser  *outline.Parser
	publish catalog.EventCallback
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the callback notified after every mutation.
func WithPublisher(fn catalog.EventCallback) Option {
	return func(s *Service) { s.publish = fn }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new attachment service. parser may be nil, in which
// case the default planning keywords are used.
func NewService(store *attachment.Store, db catalog.Catalog, parser *outline.Parser, opts ...Option) *Service {
	if parser == nil {
		parser = outline.NewParser(outline.Options{})
	}
	s := &Service{store: store, db: db, parser: parser, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Parser returns the outline parser used for documents and ad-hoc text.
func (s *Service) Parser() *outline.Parser { return s.parser }

func (s *Service) notify(scope, kind, id string) {
	if s.publish != nil {
		s.publish(scope, kind, id)
	}
}

// Save stores text content as a new attachment and catalogues it.
func (s *Service) Save(ctx context.Context, kind attachment.Kind, content, description string) (*AttachmentDetail, error) {
	return s.SaveReader(ctx, kind, strings.NewReader(content), description)
}

// SaveReader streams r into a new attachment and catalogues it.
func (s *Service) SaveReader(ctx context.Context, kind attachment.Kind, r io.Reader, description string) (*AttachmentDetail, error) {
	key, err := s.store.InsertReader(ctx, r, kind, description)
	if err != nil {
		return nil, err
	}
	if err := catalog.IndexAttachment(ctx, s.db, s.store, key); err != nil {
		// The watcher or next sync will pick it up.
		s.logger.Warn("catalog attachment failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	s.notify(catalog.ScopeAttachment, "created", key)
	return s.Get(ctx, key)
}

// Get reads an attachment's metadata and, for textual kinds, its rendered
// content.
func (s *Service) Get(ctx context.Context, key string) (*AttachmentDetail, error) {
	a, err := s.store.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	c := a.Kind.Capability()
	d := &AttachmentDetail{
		Key:         a.Key,
		Kind:        string(a.Kind),
		Description: a.Description,
		Date:        a.Date,
		Reference:   a.Reference(),
		ContentType: c.ContentType(),
	}

	content, err := s.store.Content(ctx, key)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		d.Dangling = true
		return d, nil
	case err != nil:
		return nil, err
	}
	d.Checksum = checksum.Sum(content)
	d.Size = c.Size(content)
	if textual(a.Kind) {
		d.Rendered = a.Render(content)
	}
	return d, nil
}

func textual(k attachment.Kind) bool {
	return k == attachment.KindText || k == attachment.KindLink
}

// Content returns the raw bytes of an attachment and their MIME type.
func (s *Service) Content(ctx context.Context, key string) ([]byte, string, error) {
	a, err := s.store.Fetch(ctx, key)
	if err != nil {
		return nil, "", err
	}
	data, err := s.store.Content(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, a.Kind.Capability().ContentType(), nil
}

// Delete removes an attachment from the store and the catalog.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.db.DeleteAttachment(key); err != nil {
		s.logger.Warn("uncatalog attachment failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	s.notify(catalog.ScopeAttachment, "deleted", key)
	return nil
}

// List returns paginated attachments, optionally filtered by kind.
func (s *Service) List(_ context.Context, limit, offset int, kind string) ([]AttachmentListItem, int, error) {
	if kind != "" {
		k, err := attachment.ParseKind(kind)
		if err != nil {
			return nil, 0, err
		}
		kind = string(k)
	}
	rows, total, err := s.db.ListAttachments(limit, offset, kind)
	if err != nil {
		return nil, 0, err
	}
	items := make([]AttachmentListItem, len(rows))
	for i, r := range rows {
		items[i] = AttachmentListItem{
			Key:         r.Key,
			Kind:        r.Kind,
			Description: r.Description,
			Reference:   attachment.Reference(attachment.Kind(r.Kind), r.Key),
			Size:        r.Size,
			Date:        r.CreatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(results), nil
}

// Referrers returns the documents that embed key.
func (s *Service) Referrers(_ context.Context, key string) ([]models.Reference, error) {
	if !attachment.ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidKey, key)
	}
	refs, err := s.db.Referrers(key)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(refs), nil
}

// Dangling returns document references to attachments that do not exist.
func (s *Service) Dangling(_ context.Context) ([]models.Reference, error) {
	refs, err := s.db.Dangling()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(refs), nil
}

// Sweep reconciles the store folder and drops removed orphans from the
// catalog.
func (s *Service) Sweep(ctx context.Context, opts attachment.SweepOptions) (*attachment.SweepReport, error) {
	report, err := s.store.Sweep(ctx, opts)
	if report == nil {
		return nil, err
	}
	for _, o := range report.Orphans {
		if !o.Removed || o.Reason != attachment.ReasonNoContent {
			continue
		}
		if dbErr := s.db.DeleteAttachment(o.Key); dbErr != nil {
			s.logger.Warn("uncatalog swept attachment failed", slog.String("key", o.Key), slog.String("error", dbErr.Error()))
			continue
		}
		s.notify(catalog.ScopeAttachment, "deleted", o.Key)
	}
	return report, err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
