package maintenance

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/storage/disk"
)

// ProgressFunc receives live progress from a running job.
type ProgressFunc func(percent float64, step string, info map[string]any)

type uploadQueries interface {
	AllBlobPaths(ctx context.Context) ([]string, error)
	CountByBlobPaths(ctx context.Context, paths []string) (map[string]struct{}, error)
}

// OrphanFile is one verified orphan in the report.
type OrphanFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// OrphanReport summarises one orphan-finder run.
type OrphanReport struct {
	ScannedFiles int          `json:"scanned_files"`
	OrphanCount  int          `json:"orphan_count"`
	TotalBytes   int64        `json:"total_bytes"`
	Files        []OrphanFile `json:"files"`
}

// OrphanFinder walks the upload root and reports files the database
// does not know about.
type OrphanFinder struct {
	repo         uploadQueries
	store        *disk.Store
	safetyMargin time.Duration
	batchSize    int
	workers      int
	now          func() time.Time
}

// NewOrphanFinder builds the orphan job.
func NewOrphanFinder(repo uploadQueries, store *disk.Store, safetyMargin time.Duration, batchSize, workers int) *OrphanFinder {
	if batchSize <= 0 {
		batchSize = 10000
	}
	if workers <= 0 {
		workers = 4
	}
	return &OrphanFinder{
		repo:         repo,
		store:        store,
		safetyMargin: safetyMargin,
		batchSize:    batchSize,
		workers:      workers,
		now:          time.Now,
	}
}

// Run executes the scan. Candidates younger than start minus the
// safety margin are skipped so in-flight uploads never count.
func (f *OrphanFinder) Run(ctx context.Context, progress ProgressFunc) (*OrphanReport, error) {
	start := f.now().UTC()
	cutoff := start.Add(-f.safetyMargin)

	progress(0, "loading database paths", nil)
	known, err := f.loadKnownPaths(ctx)
	if err != nil {
		return nil, err
	}
	progress(20, "scanning upload root", map[string]any{"known_paths": len(known)})

	var candidates []disk.Entry
	scanned := 0
	err = f.store.Walk(ctx, func(entry disk.Entry) error {
		scanned++
		if !entry.ModTime.Before(cutoff) {
			return nil
		}
		if _, ok := known[entry.RelPath]; ok {
			return nil
		}
		candidates = append(candidates, entry)
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "walk upload root")
	}
	progress(60, "verifying candidates", map[string]any{
		"scanned_files": scanned,
		"candidates":    len(candidates),
	})

	verified, err := f.verify(ctx, candidates)
	if err != nil {
		return nil, err
	}

	report := &OrphanReport{
		ScannedFiles: scanned,
		OrphanCount:  len(verified),
		Files:        verified,
	}
	for _, file := range verified {
		report.TotalBytes += file.Size
	}
	progress(100, "done", map[string]any{
		"orphan_count": report.OrphanCount,
		"total_bytes":  report.TotalBytes,
	})
	return report, nil
}

func (f *OrphanFinder) loadKnownPaths(ctx context.Context) (map[string]struct{}, error) {
	paths, err := f.repo.AllBlobPaths(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load database paths")
	}
	known := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		known[path] = struct{}{}
	}
	return known, nil
}

// verify re-checks every candidate batch against the database to
// absorb uploads confirmed between the snapshot and the walk.
func (f *OrphanFinder) verify(ctx context.Context, candidates []disk.Entry) ([]OrphanFile, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		verified []OrphanFile
	)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(f.workers)

	for offset := 0; offset < len(candidates); offset += f.batchSize {
		batch := candidates[offset:min(offset+f.batchSize, len(candidates))]
		group.Go(func() error {
			paths := make([]string, 0, len(batch))
			for _, entry := range batch {
				paths = append(paths, entry.RelPath)
			}
			existing, err := f.repo.CountByBlobPaths(ctx, paths)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-verify candidates")
			}
			mu.Lock()
			defer mu.Unlock()
			for _, entry := range batch {
				if _, ok := existing[entry.RelPath]; ok {
					continue
				}
				verified = append(verified, OrphanFile{Path: entry.RelPath, Size: entry.Size})
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return verified, nil
}
