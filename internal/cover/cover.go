// Package cover resolves cover art for catalog books. The entry point is
// Service.Resolve, which consults an in-memory cache, a failure memo, the
// remote fetcher and finally the placeholder generator, in that order, and
// always comes back with a renderable image of the requested size.
package cover

import (
	"context"
	"errors"
	"image"

	"github.com/jkorpela/bookstand/internal/catalog"
)

// ErrNotFound is the only error a Fetcher reports to the service: the
// cover could not be obtained, for whatever reason.
var ErrNotFound = errors.New("cover: not found")

// Key identifies a resolved cover: same title, author and size share one
// cache slot regardless of which book record asked.
type Key struct {
	Title  string
	Author string
	Width  int
	Height int
}

// FailureKey is coarser than Key: one failed network lookup suppresses
// further attempts for that book at every size.
type FailureKey struct {
	Title  string
	Author string
}

// NewKey builds the cache key for a book at the given size.
func NewKey(book catalog.Book, width, height int) Key {
	return Key{Title: book.Title, Author: book.Author, Width: width, Height: height}
}

// NewFailureKey builds the failure-memo key for a book.
func NewFailureKey(book catalog.Book) FailureKey {
	return FailureKey{Title: book.Title, Author: book.Author}
}

// Fetcher obtains real cover art. Implementations may block; callers run
// them off the interactive path. Any failure is reported as ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, book catalog.Book, width, height int) (image.Image, error)
}
