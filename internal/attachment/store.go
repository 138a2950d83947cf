package attachment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/storage"
)

// Store persists attachments as metadata/content file pairs in one folder.
// It does no locking: callers serialise access to a key when they need
// cross-operation atomicity.
type Store struct {
	files  storage.Provider
	newKey func() string
	now    func() time.Time
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeyGenerator replaces the UUID key source.
func WithKeyGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newKey = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) StoreOption {
	return func(s *Store) { s.now = fn }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewKey returns a fresh upper-case UUIDv4.
func NewKey() string {
	return strings.ToUpper(uuid.NewString())
}

// NewStore ensures folder exists and returns a store rooted there.
func NewStore(folder string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("attachment: create folder: %w", err)
	}
	files, err := storage.NewFS(folder)
	if err != nil {
		return nil, err
	}
	s := &Store{
		files:  files,
		newKey: NewKey,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Folder returns the absolute path of the store folder.
func (s *Store) Folder() string { return s.files.Root() }

// ValidKey reports whether key can address an attachment: a UUID in
// canonical upper-case form.
func ValidKey(key string) bool {
	if len(key) != 36 || strings.ToUpper(key) != key {
		return false
	}
	_, err := uuid.Parse(key)
	return err == nil
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidKey, key)
	}
	return nil
}

func metaPath(key string) string { return key + MetaExt }

// Insert stores content under a fresh key and returns the key.
func (s *Store) Insert(ctx context.Context, content string, kind Kind, description string) (string, error) {
	return s.InsertReader(ctx, strings.NewReader(content), kind, description)
}

// InsertReader streams r into a new attachment. The content file is written
// before the metadata file, so an interrupted insert leaves at worst an
// unreferenced content file for Sweep to collect.
func (s *Store) InsertReader(ctx context.Context, r io.Reader, kind Kind, description string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidKind, string(kind))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := s.newKey()
	if err := checkKey(key); err != nil {
		return "", err
	}
	if s.exists(key) {
		return "", fmt.Errorf("%w: attachment %s", apperr.ErrAlreadyExists, key)
	}

	n, err := s.files.WriteFrom(key, r)
	if err != nil {
		return "", fmt.Errorf("%w: write content %s: %w", apperr.ErrStorage, key, err)
	}

	a := Attachment{
		Kind:        kind,
		Date:        s.now().Truncate(time.Second),
		URL:         key,
		Description: description,
		Key:         key,
	}
	data, err := json.Marshal(a)
	if err != nil {
		s.discardContent(key)
		return "", fmt.Errorf("attachment: encode %s: %w", key, err)
	}
	if err := s.files.Write(metaPath(key), data); err != nil {
		s.discardContent(key)
		return "", fmt.Errorf("%w: write metadata %s: %w", apperr.ErrStorage, key, err)
	}

	s.logger.Debug("attachment inserted",
		slog.String("key", key),
		slog.String("kind", string(kind)),
		slog.Int64("size", n),
	)
	return key, nil
}

// exists reports whether either file of key is present.
func (s *Store) exists(key string) bool {
	for _, p := range []string{key, metaPath(key)} {
		if info, err := s.files.Stat(p); err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func (s *Store) discardContent(key string) {
	if err := s.files.Delete(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("attachment: orphaned content left behind",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Fetch reads and decodes the metadata record for key. It does not check
// that the content file exists.
func (s *Store) Fetch(ctx context.Context, key string) (*Attachment, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.files.Read(metaPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: attachment %s", apperr.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: read metadata %s: %w", apperr.ErrStorage, key, err)
	}
	var a Attachment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: metadata %s: %w", apperr.ErrDecode, key, err)
	}
	return &a, nil
}

// Content returns the raw content bytes of key.
func (s *Store) Content(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.files.Read(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: content of %s", apperr.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: read content %s: %w", apperr.ErrStorage, key, err)
	}
	return data, nil
}

// Delete removes both files of key. Each removal is attempted regardless of
// the other; failures are joined. When neither file existed the result
// wraps apperr.ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	metaErr := s.files.Delete(metaPath(key))
	contentErr := s.files.Delete(key)

	metaMissing := errors.Is(metaErr, os.ErrNotExist)
	contentMissing := errors.Is(contentErr, os.ErrNotExist)
	if metaMissing && contentMissing {
		return fmt.Errorf("%w: attachment %s", apperr.ErrNotFound, key)
	}

	var errs []error
	if metaErr != nil {
		errs = append(errs, fmt.Errorf("%w: remove metadata %s: %w", apperr.ErrStorage, key, metaErr))
	}
	if contentErr != nil {
		errs = append(errs, fmt.Errorf("%w: remove content %s: %w", apperr.ErrStorage, key, contentErr))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("attachment: partial delete",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Debug("attachment deleted", slog.String("key", key))
	return nil
}

// Keys returns every key that has a metadata file, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	metas, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(metas))
	for k := range metas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// entry is one file seen while scanning the folder.
type entry struct {
	modTime time.Time
	size    int64
}

// scan lists the top level of the folder and splits it into metadata and
// content files by key. Names that are not keys are ignored.
func (s *Store) scan(ctx context.Context) (metas, contents map[string]entry, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	des, err := os.ReadDir(s.files.Root())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list folder: %w", apperr.ErrStorage, err)
	}
	metas = make(map[string]entry)
	contents = make(map[string]entry)
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		key, isMeta := strings.CutSuffix(name, MetaExt)
		if !ValidKey(key) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, nil, fmt.Errorf("%w: stat %s: %w", apperr.ErrStorage, name, err)
		}
		e := entry{modTime: info.ModTime(), size: info.Size()}
		if isMeta {
			metas[key] = e
		} else {
			contents[key] = e
		}
	}
	return metas, contents, nil
}
