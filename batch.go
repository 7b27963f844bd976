package stowr

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// runBatch drives fn over every path src yields, honoring cfg.Multithread
// as a work-stealing pool size. The heavy per-item work inside fn is
// expected to take its own locks only around the commit step (StoreFile
// and OweFile already do); runBatch itself adds no locking beyond
// errgroup's bounded concurrency. A non-nil cancel is polled between item
// dispatches; once it returns true, no further items are dispatched and
// already-running ones are allowed to finish.
func (e *Engine) runBatch(ctx context.Context, src PathSource, progress ProgressFunc, cancel CancelFunc, fn func(context.Context, string) error) BatchResult {
	var (
		mu     sync.Mutex
		result BatchResult
	)

	total := 0
	var paths []string
	for src != nil {
		p, ok := src.Next()
		if !ok {
			break
		}
		paths = append(paths, p)
		total++
	}

	limit := e.cfg.Multithread
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	completed := 0
	for _, path := range paths {
		if cancel != nil && cancel() {
			break
		}
		path := path
		g.Go(func() error {
			err := fn(gctx, path)

			mu.Lock()
			completed++
			if err != nil {
				result.Failed = append(result.Failed, BatchFailure{Path: path, Err: err})
			} else {
				result.Succeeded = append(result.Succeeded, path)
			}
			n := completed
			mu.Unlock()

			if progress != nil {
				progress(n, total, path, err)
			}
			return nil
		})
	}
	g.Wait()

	return result
}

// StoreFilesFromList stores each path src yields, collecting per-item failures into the returned BatchResult
// rather than aborting the batch.
func (e *Engine) StoreFilesFromList(ctx context.Context, src PathSource, keepOriginal bool, progress ProgressFunc, cancel CancelFunc) BatchResult {
	return e.runBatch(ctx, src, progress, cancel, func(ctx context.Context, path string) error {
		return e.StoreFile(ctx, path, keepOriginal)
	})
}

// OweFilesFromList restores each path src yields, batch-style.
func (e *Engine) OweFilesFromList(ctx context.Context, src PathSource, progress ProgressFunc, cancel CancelFunc) BatchResult {
	return e.runBatch(ctx, src, progress, cancel, e.OweFile)
}

// OweAllFiles restores every entry currently in the index.
func (e *Engine) OweAllFiles(ctx context.Context, progress ProgressFunc, cancel CancelFunc) (BatchResult, error) {
	entries, err := e.ListFiles(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	paths := make([]string, len(entries))
	for i, entry := range entries {
		paths[i] = entry.OriginalPath
	}
	return e.OweFilesFromList(ctx, NewSlicePathSource(paths), progress, cancel), nil
}
