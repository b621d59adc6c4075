package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkorpela/bookstand/internal/catalog"
	"github.com/jkorpela/bookstand/internal/config"
	"github.com/jkorpela/bookstand/internal/cover"
	"github.com/jkorpela/bookstand/internal/prefetch"
)

func resetCmdState(t *testing.T) {
	t.Helper()

	t.Cleanup(viper.Reset)
	viper.Reset()
	config.SetDefaults()
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("bookstand"),
		kong.Description("A bookstore browser that fetches cover art from OpenLibrary."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			t.Fatalf("unexpected Kong exit %d", code)
		}),
	)
	require.NoError(t, err)

	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, ctx
}

func TestParseDefaults(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "browse")

	assert.Equal(t, "browse", ctx.Command())
	assert.Equal(t, "./bookstand-cache.db", cli.CacheDBFile)
	assert.Equal(t, "720h", cli.CacheTTL)
	assert.Equal(t, "0", cli.FailureCooldown)
	assert.Empty(t, cli.Catalog)
}

func TestBrowseIsDefaultCommand(t *testing.T) {
	resetCmdState(t)

	_, ctx := parseCLI(t)

	assert.Equal(t, "browse", ctx.Command())
}

func TestParsePrefetchFlags(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "prefetch", "-o", "/tmp/covers", "--width", "100", "--workers", "2", "--overwrite")

	assert.Equal(t, "prefetch", ctx.Command())
	assert.Equal(t, "/tmp/covers", cli.Prefetch.Output)
	assert.Equal(t, 100, cli.Prefetch.Width)
	assert.Equal(t, 2, cli.Prefetch.Workers)
	assert.True(t, cli.Prefetch.Overwrite)
}

func TestUpdateGlobalConfig(t *testing.T) {
	resetCmdState(t)

	cli := &CLI{
		Catalog:         "/tmp/books.yaml",
		CacheDBFile:     "/tmp/cache.db",
		CacheTTL:        "12h",
		FailureCooldown: "30m",
	}
	updateGlobalConfig(cli)

	assert.Equal(t, "/tmp/books.yaml", viper.GetString("CatalogFile"))
	assert.Equal(t, "/tmp/cache.db", viper.GetString("cache.dbfile"))
	assert.Equal(t, "12h", viper.GetString("cache.ttl"))
	assert.Equal(t, "30m", viper.GetString("covers.failure_cooldown"))
}

func TestUpdateGlobalConfigKeepsCatalogDefault(t *testing.T) {
	resetCmdState(t)

	updateGlobalConfig(&CLI{CacheDBFile: "x", CacheTTL: "1h", FailureCooldown: "0"})

	assert.Empty(t, viper.GetString("CatalogFile"))
}

func TestLoadCatalogFallsBackToDefault(t *testing.T) {
	resetCmdState(t)

	store, err := loadCatalog(config.Load())

	require.NoError(t, err)
	assert.Equal(t, catalog.Default().Len(), store.Len())
}

func TestLoadCatalogFromFile(t *testing.T) {
	resetCmdState(t)

	path := filepath.Join(t.TempDir(), "books.json")
	data := `[{"title":"Dune","author":"Frank Herbert","genre":"science fiction","rating":4.8}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	viper.Set("CatalogFile", path)

	store, err := loadCatalog(config.Load())

	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestLoadCatalogReportsBadFile(t *testing.T) {
	resetCmdState(t)
	viper.Set("CatalogFile", filepath.Join(t.TempDir(), "missing.json"))

	_, err := loadCatalog(config.Load())

	assert.Error(t, err)
}

func TestNewCoverServiceWithUnusableCachePath(t *testing.T) {
	resetCmdState(t)
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "no", "such", "dir", "cache.db"))

	svc := newCoverService(config.Load())
	t.Cleanup(func() { _ = svc.Close() })

	// The service still works without the metadata cache.
	img := svc.Placeholder(catalog.Book{Title: "Dune", Genre: "science fiction"}, 40, 60)
	assert.NotNil(t, img)
}

func TestBrowseRunUsesResolvedSize(t *testing.T) {
	resetCmdState(t)
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))

	var gotW, gotH int
	orig := runBrowse
	runBrowse = func(_ context.Context, store *catalog.Store, coord *cover.Coordinator, w, h int) error {
		gotW, gotH = w, h
		return nil
	}
	t.Cleanup(func() { runBrowse = orig })

	cmd := &BrowseCmd{Width: 90}
	require.NoError(t, cmd.Run())

	assert.Equal(t, 90, gotW)
	assert.Equal(t, config.DefaultCardHeight, gotH)
}

func TestPrefetchRunPassesOptions(t *testing.T) {
	resetCmdState(t)
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))
	viper.Set("CoverDir", "/tmp/from-config")

	var got prefetch.Options
	var gotBooks int
	orig := runPrefetch
	runPrefetch = func(_ context.Context, _ *cover.Service, books []catalog.Book, opts prefetch.Options) (prefetch.Stats, error) {
		got = opts
		gotBooks = len(books)
		return prefetch.Stats{}, nil
	}
	t.Cleanup(func() { runPrefetch = orig })

	cmd := &PrefetchCmd{Workers: 2, Overwrite: true}
	require.NoError(t, cmd.Run())

	assert.Equal(t, "/tmp/from-config", got.OutputDir)
	assert.Equal(t, config.DefaultCardWidth, got.Width)
	assert.Equal(t, config.DefaultCardHeight, got.Height)
	assert.Equal(t, 2, got.Workers)
	assert.True(t, got.Overwrite)
	assert.Equal(t, catalog.Default().Len(), gotBooks)
}

func TestCacheClear(t *testing.T) {
	resetCmdState(t)
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))

	cmd := &CacheClearCmd{}
	assert.NoError(t, cmd.Run())

	cmd = &CacheClearCmd{ExpiredOnly: true}
	assert.NoError(t, cmd.Run())
}

func TestInitLoggingDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, initLogging)
}
