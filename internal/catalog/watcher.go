package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event scopes reported to an EventCallback.
const (
	ScopeAttachment = "attachment"
	ScopeDocument   = "document"
)

// EventCallback is called after a watcher-driven catalog change.
// kind is one of "created", "updated", "deleted"; id is an attachment key
// or a document path.
type EventCallback func(scope, kind, id string)

const settleDelay = 200 * time.Millisecond

// debounce is a resettable one-shot timer usable in a select loop.
type debounce struct {
	timer *time.Timer
	C     <-chan time.Time
}

func (d *debounce) schedule() {
	if d.timer == nil {
		d.timer = time.NewTimer(settleDelay)
		d.C = d.timer.C
		return
	}
	d.timer.Reset(settleDelay)
}

func (d *debounce) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Watch starts an fsnotify watcher on the attachment folder and the
// documents tree and keeps the catalog current until ctx is cancelled.
// It calls cb (if non-nil) after each catalog mutation.
//
// Attachment events are debounced into a single reconciliation pass since
// an insert touches two files. Document writes are indexed immediately;
// renames trigger a debounced reconciliation of the documents tree.
func Watch(ctx context.Context, db *DB, src Sources, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	attRoot := src.Attachments.Folder()
	if err := w.Add(attRoot); err != nil {
		return err
	}
	docRoot := ""
	if src.Documents != nil {
		docRoot = src.Documents.Root()
		if err := addDirsRecursive(w, docRoot); err != nil {
			return err
		}
	}

	logger.Info("watcher: started",
		slog.String("attachments", attRoot),
		slog.String("documents", docRoot),
	)

	notify := func(scope string, changes []change) {
		if cb == nil {
			return
		}
		for _, c := range changes {
			cb(scope, c.kind, c.id)
		}
	}

	var attachments, documents debounce
	for {
		select {
		case <-ctx.Done():
			attachments.stop()
			documents.stop()
			logger.Info("watcher: stopped")
			return nil

		case <-attachments.C:
			changes, err := syncAttachments(ctx, db, src.Attachments, logger)
			if err != nil {
				logger.Warn("watcher: attachment reconcile failed", slog.String("error", err.Error()))
				continue
			}
			notify(ScopeAttachment, changes)

		case <-documents.C:
			changes, err := syncDocuments(db, src, logger)
			if err != nil {
				logger.Warn("watcher: document reconcile failed", slog.String("error", err.Error()))
				continue
			}
			notify(ScopeDocument, changes)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if filepath.Dir(absPath) == attRoot {
				attachments.schedule()
				continue
			}
			if docRoot == "" {
				continue
			}

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the watch was added.
					documents.schedule()
					continue
				}
			}

			if !strings.HasSuffix(absPath, DocumentExt) {
				continue
			}
			rel, relErr := filepath.Rel(docRoot, absPath)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				prev, _ := db.GetDocumentChecksum(rel)
				data, readErr := src.Documents.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if idxErr := IndexDocument(db, src.Parser, rel, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if prev == "" {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
				notify(ScopeDocument, []change{{kind: kind, id: rel}})

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives as
				// a Create if it stays inside a watched dir.
				if delErr := db.DeleteDocument(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				notify(ScopeDocument, []change{{kind: "deleted", id: rel}})
				if ev.Op&fsnotify.Rename != 0 {
					documents.schedule()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
