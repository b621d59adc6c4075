// Package prefetch bulk-resolves covers for a whole catalog and saves
// them to disk, so a later browse session paints real artwork without
// waiting on the network.
package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jkorpela/bookstand/internal/catalog"
	"github.com/jkorpela/bookstand/internal/cover"
)

// Options controls a prefetch run.
type Options struct {
	// OutputDir is where JPEG covers are written.
	OutputDir string
	// Width and Height are the cover dimensions to resolve.
	Width  int
	Height int
	// Workers bounds concurrent resolutions.
	Workers int
	// Overwrite re-resolves covers whose file already exists.
	Overwrite bool
}

// Stats summarizes a prefetch run.
type Stats struct {
	Resolved int
	Skipped  int
	Failed   int
	Elapsed  time.Duration
}

// Run resolves a cover per book through the service and writes each as a
// JPEG under opts.OutputDir. Failures are logged per book and counted;
// the run itself only fails on setup errors.
func Run(ctx context.Context, svc *cover.Service, books []catalog.Book, opts Options) (Stats, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return Stats{}, fmt.Errorf("invalid cover size %dx%d", opts.Width, opts.Height)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	start := time.Now()

	var (
		mu    sync.Mutex
		stats Stats
	)

	jobs := make(chan catalog.Book)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for book := range jobs {
				outcome := prefetchOne(ctx, svc, book, opts)
				mu.Lock()
				switch outcome {
				case outcomeResolved:
					stats.Resolved++
				case outcomeSkipped:
					stats.Skipped++
				default:
					stats.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, book := range books {
		select {
		case jobs <- book:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return stats, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	stats.Elapsed = time.Since(start)
	slog.Info("Prefetch finished",
		"resolved", stats.Resolved, "skipped", stats.Skipped, "failed", stats.Failed,
		"elapsed", stats.Elapsed)
	return stats, nil
}

type outcome int

const (
	outcomeResolved outcome = iota
	outcomeSkipped
	outcomeFailed
)

func prefetchOne(ctx context.Context, svc *cover.Service, book catalog.Book, opts Options) outcome {
	path := filepath.Join(opts.OutputDir, CoverFilename(book))

	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			slog.Debug("Cover already exists, skipping", "path", path)
			return outcomeSkipped
		}
	}

	img := svc.Resolve(ctx, book, opts.Width, opts.Height)

	if err := imaging.Save(img, path, imaging.JPEGQuality(85)); err != nil {
		slog.Warn("Failed to save cover", "title", book.Title, "path", path, "error", err)
		return outcomeFailed
	}

	slog.Info("Saved cover", "title", book.Title, "path", path)
	return outcomeResolved
}

// CoverFilename builds the on-disk name for a book's cover:
// "Title - Author - cover.jpg", with filesystem-hostile characters
// replaced.
func CoverFilename(book catalog.Book) string {
	name := book.Title
	if book.Author != "" {
		name += " - " + book.Author
	}
	return sanitizeFilename(name) + " - cover.jpg"
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, ":", " -")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}
