package cover

import (
	"context"
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/jkorpela/bookstand/internal/catalog"
	"github.com/jkorpela/bookstand/internal/openlibrary"
)

// RemoteFetcher obtains real cover art from OpenLibrary. It never
// propagates errors: every failure, from a dead network to a corrupt
// image payload, comes back as ErrNotFound. Details go to the log.
type RemoteFetcher struct {
	client *openlibrary.Client
}

// NewRemoteFetcher wraps an OpenLibrary client as a Fetcher.
func NewRemoteFetcher(client *openlibrary.Client) *RemoteFetcher {
	return &RemoteFetcher{client: client}
}

// Close releases resources held by the underlying client.
func (f *RemoteFetcher) Close() error {
	return f.client.Close()
}

// Fetch looks up the book, downloads its cover and letterboxes it to
// exactly width x height.
func (f *RemoteFetcher) Fetch(ctx context.Context, book catalog.Book, width, height int) (image.Image, error) {
	// A cheap probe first: when the network is down this returns in
	// about a second instead of burning through per-request timeouts.
	if !f.client.Online(ctx) {
		slog.Debug("Skipping cover fetch, network unavailable", "title", book.Title)
		return nil, ErrNotFound
	}

	coverID, err := f.client.FindCoverID(ctx, book.Title, book.Author)
	if err != nil {
		slog.Debug("Cover lookup failed", "title", book.Title, "author", book.Author, "error", err)
		return nil, ErrNotFound
	}

	img, err := f.client.CoverImage(ctx, coverID)
	if err != nil {
		slog.Debug("Cover download failed", "title", book.Title, "cover_id", coverID, "error", err)
		return nil, ErrNotFound
	}

	return Letterbox(img, width, height), nil
}

// Letterbox scales img to fit within width x height preserving aspect
// ratio and centers it on a white canvas of exactly those dimensions, so
// every cover, real or generated, has identical geometry.
func Letterbox(img image.Image, width, height int) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	fitted := imaging.Fit(img, width, height, imaging.Lanczos)
	canvas := imaging.New(width, height, color.White)
	return imaging.PasteCenter(canvas, fitted)
}
