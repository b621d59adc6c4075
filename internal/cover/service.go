package cover

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/jkorpela/bookstand/internal/catalog"
)

// Service is the single entry point for cover resolution. It owns the
// in-memory cover cache and the failure memo and encodes the fallback
// policy: cache, failure memo, network, placeholder, in that order.
//
// Resolve never fails. Cached images are shared between callers and must
// be treated as read-only; anything that wants to mutate one (effects,
// rotation) must work on a copy.
type Service struct {
	fetcher  Fetcher
	cache    *memoryCache
	failures *failureMemo
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFailureCooldown lets memoized failures lapse after d, so a
// long-running session retries once the network may be back. Zero (the
// default) memoizes failures for the life of the process.
func WithFailureCooldown(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.failures.cooldown = d
	}
}

// NewService creates a cover service around a fetcher.
func NewService(fetcher Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher:  fetcher,
		cache:    newMemoryCache(),
		failures: newFailureMemo(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns cover art for the book at exactly width x height. The
// lookup order is strict and short-circuiting:
//
//  1. cache hit — return it
//  2. memoized failure — skip the network, go to 4
//  3. network fetch — on success cache and return; on failure memoize
//  4. placeholder — generate, cache under the same key, return
//
// The ordering guarantees at most one real network attempt per
// title+author pair (per cooldown window), with every later request for
// any size served from memory.
//
// Two goroutines racing on the same key may both reach the network; the
// duplicate work is tolerated and the last write wins.
func (s *Service) Resolve(ctx context.Context, book catalog.Book, width, height int) image.Image {
	key := NewKey(book, width, height)

	if img, ok := s.cache.Lookup(key); ok {
		return img
	}

	failKey := NewFailureKey(book)
	if s.failures.HasFailed(failKey) {
		slog.Debug("Cover fetch suppressed by failure memo", "title", book.Title, "author", book.Author)
		return s.placeholderFor(key, book, width, height)
	}

	img, err := s.fetcher.Fetch(ctx, book, width, height)
	if err == nil {
		s.cache.Store(key, img)
		return img
	}
	if !errors.Is(err, ErrNotFound) {
		// Fetchers are expected to map everything to ErrNotFound; treat
		// anything else the same way but make it visible.
		slog.Warn("Cover fetcher returned unexpected error", "title", book.Title, "error", err)
	}
	s.failures.RecordFailure(failKey)

	return s.placeholderFor(key, book, width, height)
}

// Placeholder generates a placeholder for the book without touching the
// cache or the network. Exposed for instant first paint while the real
// cover resolves in the background.
func (s *Service) Placeholder(book catalog.Book, width, height int) image.Image {
	return Generate(book, width, height)
}

func (s *Service) placeholderFor(key Key, book catalog.Book, width, height int) image.Image {
	// Cache the placeholder under the same key so repeat requests for a
	// failed book are plain map lookups.
	img := Generate(book, width, height)
	s.cache.Store(key, img)
	return img
}

// CachedCovers reports how many covers are currently cached.
func (s *Service) CachedCovers() int {
	return s.cache.Len()
}

// Close releases the underlying fetcher if it holds resources.
func (s *Service) Close() error {
	if closer, ok := s.fetcher.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
