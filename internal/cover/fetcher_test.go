package cover

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkorpela/bookstand/internal/openlibrary"
	"github.com/jkorpela/bookstand/internal/ratelimit"
)

// coverServer fakes both the search API and the covers host.
type coverServer struct {
	search *httptest.Server
	covers *httptest.Server

	searchCalls atomic.Int32
	coverCalls  atomic.Int32
}

func newCoverServer(t *testing.T, searchBody string, coverImage []byte) *coverServer {
	t.Helper()
	s := &coverServer{}

	s.search = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.searchCalls.Add(1)
		_, _ = w.Write([]byte(searchBody))
	}))
	t.Cleanup(s.search.Close)

	s.covers = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.coverCalls.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(coverImage)
	}))
	t.Cleanup(s.covers.Close)

	return s
}

func (s *coverServer) client() *openlibrary.Client {
	return openlibrary.NewClient(
		openlibrary.WithBaseURL(s.search.URL),
		openlibrary.WithCoverBaseURL(s.covers.URL),
		openlibrary.WithProbeURL(s.search.URL),
		openlibrary.WithRateLimiter(ratelimit.NewWithBurst("test", 1000, 1000)),
	)
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(300, 450, color.NRGBA{R: 80, G: 90, B: 100, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func TestFetchRealCover(t *testing.T) {
	srv := newCoverServer(t,
		`{"numFound":1,"docs":[{"title":"Dune","author_name":["Frank Herbert"],"cover_i":111}]}`,
		testJPEG(t))
	fetcher := NewRemoteFetcher(srv.client())

	start := time.Now()
	img, err := fetcher.Fetch(context.Background(), testBook, 140, 200)
	require.NoError(t, err)
	assert.Equal(t, 140, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, int32(1), srv.searchCalls.Load())
	assert.Equal(t, int32(1), srv.coverCalls.Load())
}

func TestFetchShortCircuitsWhenOffline(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	client := openlibrary.NewClient(
		openlibrary.WithBaseURL(dead.URL),
		openlibrary.WithCoverBaseURL(dead.URL),
		openlibrary.WithProbeURL(dead.URL),
		openlibrary.WithRateLimiter(ratelimit.NewWithBurst("test", 1000, 1000)),
	)
	fetcher := NewRemoteFetcher(client)

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), testBook, 140, 200)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Less(t, time.Since(start), 1500*time.Millisecond,
		"probe failure must short-circuit before the per-request timeouts")
}

func TestFetchNoCoverIDMapsToNotFound(t *testing.T) {
	srv := newCoverServer(t,
		`{"numFound":1,"docs":[{"title":"Obscure Title"}]}`, nil)
	fetcher := NewRemoteFetcher(srv.client())

	_, err := fetcher.Fetch(context.Background(), testBook, 140, 200)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(0), srv.coverCalls.Load(), "no image id means no download attempt")
}

func TestFetchCorruptImageMapsToNotFound(t *testing.T) {
	srv := newCoverServer(t,
		`{"numFound":1,"docs":[{"title":"Dune","cover_i":5}]}`,
		[]byte("definitely not a jpeg"))
	fetcher := NewRemoteFetcher(srv.client())

	_, err := fetcher.Fetch(context.Background(), testBook, 140, 200)
	require.ErrorIs(t, err, ErrNotFound)
}

// Scenario: network up, metadata match with an image id resolves to a real
// (non-placeholder) cover of the requested size.
func TestServiceEndToEndRealCover(t *testing.T) {
	srv := newCoverServer(t,
		`{"numFound":1,"docs":[{"title":"Dune","author_name":["Frank Herbert"],"cover_i":111}]}`,
		testJPEG(t))
	svc := NewService(NewRemoteFetcher(srv.client()))

	img := svc.Resolve(context.Background(), testBook, 140, 200)
	require.Equal(t, 140, img.Bounds().Dx())
	require.Equal(t, 200, img.Bounds().Dy())

	placeholder := Generate(testBook, 140, 200)
	assert.NotEqual(t, placeholder, img, "a fetched cover must not be the placeholder")
}

// Scenario: probe fails, resolve comes back with a placeholder within
// about a second.
func TestServiceEndToEndOffline(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	client := openlibrary.NewClient(
		openlibrary.WithBaseURL(dead.URL),
		openlibrary.WithCoverBaseURL(dead.URL),
		openlibrary.WithProbeURL(dead.URL),
		openlibrary.WithRateLimiter(ratelimit.NewWithBurst("test", 1000, 1000)),
	)
	svc := NewService(NewRemoteFetcher(client))

	start := time.Now()
	img := svc.Resolve(context.Background(), testBook, 140, 200)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
	assert.Equal(t, 140, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

// Scenario: a match without an image id yields a placeholder and records
// the failure, so no further network attempts happen at any size.
func TestServiceEndToEndNoCoverRecordsFailure(t *testing.T) {
	srv := newCoverServer(t,
		`{"numFound":1,"docs":[{"title":"Obscure Title"}]}`, nil)
	svc := NewService(NewRemoteFetcher(srv.client()))

	svc.Resolve(context.Background(), testBook, 140, 200)
	first := srv.searchCalls.Load()
	require.GreaterOrEqual(t, first, int32(1))

	svc.Resolve(context.Background(), testBook, 120, 160)
	assert.Equal(t, first, srv.searchCalls.Load(),
		"memoized failure must suppress network attempts at other sizes")
	assert.Equal(t, 2, svc.CachedCovers())
}

// Scenario: two sizes for the same book are two cache entries and at most
// two fetch attempts.
func TestServiceEndToEndTwoSizes(t *testing.T) {
	srv := newCoverServer(t,
		`{"numFound":1,"docs":[{"title":"Dune","cover_i":111}]}`,
		testJPEG(t))
	svc := NewService(NewRemoteFetcher(srv.client()))

	a := svc.Resolve(context.Background(), testBook, 140, 200)
	b := svc.Resolve(context.Background(), testBook, 120, 160)

	assert.Equal(t, 140, a.Bounds().Dx())
	assert.Equal(t, 120, b.Bounds().Dx())
	assert.Equal(t, 2, svc.CachedCovers())
	assert.LessOrEqual(t, srv.coverCalls.Load(), int32(2))
}

func TestLetterboxExactDimensions(t *testing.T) {
	src := imaging.New(300, 450, color.NRGBA{R: 1, A: 255})

	tests := []struct{ w, h int }{
		{140, 200},
		{200, 140}, // wider than tall
		{50, 50},
		{1, 1},
	}
	for _, tt := range tests {
		out := Letterbox(src, tt.w, tt.h)
		assert.Equal(t, tt.w, out.Bounds().Dx())
		assert.Equal(t, tt.h, out.Bounds().Dy())
	}
}

func TestLetterboxPadsWithWhite(t *testing.T) {
	// A tall source letterboxed into a wide box leaves white bars at the
	// sides.
	src := imaging.New(100, 400, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	out := Letterbox(src, 200, 100).(*image.NRGBA)

	corner := out.NRGBAAt(1, 1)
	assert.Equal(t, uint8(255), corner.R)
	assert.Equal(t, uint8(255), corner.G)
	assert.Equal(t, uint8(255), corner.B)
}
