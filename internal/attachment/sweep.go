package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/starford/iceberg/internal/apperr"
)

// DefaultGracePeriod protects files of an insert that is still in flight.
const DefaultGracePeriod = 10 * time.Minute

// SweepOptions controls a reconciliation pass.
type SweepOptions struct {
	// GracePeriod skips files modified more recently than this. Zero means
	// DefaultGracePeriod; negative means no grace at all.
	GracePeriod time.Duration
	// DryRun reports orphans without removing them.
	DryRun bool
}

// Orphan is one half of a broken metadata/content pair.
type Orphan struct {
	Key     string    `json:"key"`
	Path    string    `json:"path"`
	Reason  string    `json:"reason"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
	Removed bool      `json:"removed"`
}

// Orphan reasons.
const (
	ReasonNoContent  = "metadata without content"
	ReasonNoMetadata = "content without metadata"
)

// SweepReport summarises a Sweep.
type SweepReport struct {
	Scanned int      `json:"scanned"`
	Orphans []Orphan `json:"orphans"`
}

// Sweep finds metadata files without content and content files without
// metadata, and removes those older than the grace period unless DryRun is
// set. Removal failures are joined into the returned error; the report still
// lists every orphan found.
func (s *Store) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	grace := opts.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	if grace < 0 {
		grace = 0
	}
	cutoff := s.now().Add(-grace)

	metas, contents, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Scanned: len(metas) + len(contents), Orphans: []Orphan{}}
	for key, e := range metas {
		if _, ok := contents[key]; ok || e.modTime.After(cutoff) {
			continue
		}
		report.Orphans = append(report.Orphans, Orphan{
			Key: key, Path: metaPath(key), Reason: ReasonNoContent, ModTime: e.modTime, Size: e.size,
		})
	}
	for key, e := range contents {
		if _, ok := metas[key]; ok || e.modTime.After(cutoff) {
			continue
		}
		report.Orphans = append(report.Orphans, Orphan{
			Key: key, Path: key, Reason: ReasonNoMetadata, ModTime: e.modTime, Size: e.size,
		})
	}
	sort.Slice(report.Orphans, func(i, j int) bool {
		return report.Orphans[i].Path < report.Orphans[j].Path
	})

	if opts.DryRun {
		return report, nil
	}

	var errs []error
	for i := range report.Orphans {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		o := &report.Orphans[i]
		err := s.files.Delete(o.Path)
		switch {
		case err == nil, errors.Is(err, os.ErrNotExist):
			o.Removed = true
			s.logger.Info("sweep: removed orphan",
				slog.String("path", o.Path),
				slog.String("reason", o.Reason),
			)
		default:
			errs = append(errs, fmt.Errorf("%w: sweep %s: %w", apperr.ErrStorage, o.Path, err))
		}
	}
	return report, errors.Join(errs...)
}
