package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/jkorpela/bookstand/internal/catalog"
	"github.com/jkorpela/bookstand/internal/config"
	"github.com/jkorpela/bookstand/internal/cover"
	"github.com/jkorpela/bookstand/internal/metacache"
	"github.com/jkorpela/bookstand/internal/openlibrary"
	"github.com/jkorpela/bookstand/internal/prefetch"
	"github.com/jkorpela/bookstand/internal/tui"
)

// Indirections for tests.
var (
	runBrowse   = tui.Run
	runPrefetch = prefetch.Run
)

// CLI represents the complete command structure for the bookstand application
type CLI struct {
	// Global flags
	Catalog string `help:"Path to a JSON or YAML catalog file (built-in demo catalog when empty)"`

	// Cache flags
	CacheDBFile     string `help:"Path to metadata cache SQLite database file" default:"./bookstand-cache.db"`
	CacheTTL        string `help:"Metadata cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`
	FailureCooldown string `help:"Retry failed cover lookups after this duration (0 = never during this run)" default:"0"`

	Browse   BrowseCmd   `cmd:"" default:"1" help:"Browse the catalog interactively"`
	Prefetch PrefetchCmd `cmd:"" help:"Download cover images for the whole catalog"`
	Cache    CacheCmd    `cmd:"" help:"Manage the metadata cache"`
}

// BrowseCmd represents the interactive browse command
type BrowseCmd struct {
	Width  int `help:"Cover width in pixels (0 = config value)"`
	Height int `help:"Cover height in pixels (0 = config value)"`
}

// PrefetchCmd represents the prefetch command
type PrefetchCmd struct {
	Output    string `short:"o" help:"Directory to save cover images into (defaults to CoverDir from config)"`
	Width     int    `help:"Cover width in pixels (0 = config value)"`
	Height    int    `help:"Cover height in pixels (0 = config value)"`
	Workers   int    `help:"Number of concurrent downloads (0 = config value)"`
	Overwrite bool   `help:"Re-download covers that already exist on disk"`
}

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Remove cached metadata lookups"`
}

// CacheClearCmd represents the cache clear command
type CacheClearCmd struct {
	ExpiredOnly bool `help:"Only remove entries past their TTL"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging()
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("bookstand"),
		kong.Description("A bookstore browser that fetches cover art from OpenLibrary."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()

	viper.SetConfigName("bookstand")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Debug("No config file found, using defaults")
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}
}

func updateGlobalConfig(cli *CLI) {
	if cli.Catalog != "" {
		viper.Set("CatalogFile", cli.Catalog)
	}

	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
	viper.Set("covers.failure_cooldown", cli.FailureCooldown)
}

func initLogging() {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: slog.LevelInfo,
	})

	slog.SetDefault(slog.New(handler))
}

// loadCatalog picks the configured catalog file or falls back to the
// built-in demo catalog.
func loadCatalog(settings config.Settings) (*catalog.Store, error) {
	if settings.CatalogFile == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(settings.CatalogFile)
}

// newCoverService wires the metadata cache, the OpenLibrary client and
// the cover service. The returned service owns the cache handle and
// releases it on Close.
func newCoverService(settings config.Settings) *cover.Service {
	var opts []openlibrary.Option

	db, err := metacache.Open(settings.CacheDBFile, settings.CacheTTL)
	if err != nil {
		slog.Warn("Metadata cache unavailable, lookups always hit the network", "error", err)
	} else {
		opts = append(opts, openlibrary.WithMetadataCache(db))
	}

	client := openlibrary.NewClient(opts...)
	fetcher := cover.NewRemoteFetcher(client)

	return cover.NewService(fetcher, cover.WithFailureCooldown(settings.FailureCooldown))
}

func (b *BrowseCmd) Run() error {
	settings := config.Load()

	store, err := loadCatalog(settings)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	width, height := settings.CardWidth, settings.CardHeight
	if b.Width > 0 {
		width = b.Width
	}
	if b.Height > 0 {
		height = b.Height
	}

	svc := newCoverService(settings)
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Closing cover service", "error", err)
		}
	}()

	coord := cover.NewCoordinator(svc)
	defer coord.Close()

	return runBrowse(context.Background(), store, coord, width, height)
}

func (p *PrefetchCmd) Run() error {
	settings := config.Load()

	store, err := loadCatalog(settings)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	outputDir := p.Output
	if outputDir == "" {
		outputDir = settings.CoverDir
	}
	width, height := settings.CardWidth, settings.CardHeight
	if p.Width > 0 {
		width = p.Width
	}
	if p.Height > 0 {
		height = p.Height
	}
	workers := settings.PrefetchWorkers
	if p.Workers > 0 {
		workers = p.Workers
	}

	svc := newCoverService(settings)
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Closing cover service", "error", err)
		}
	}()

	stats, err := runPrefetch(context.Background(), svc, store.Books(), prefetch.Options{
		OutputDir: outputDir,
		Width:     width,
		Height:    height,
		Workers:   workers,
		Overwrite: p.Overwrite,
	})
	if err != nil {
		return err
	}

	slog.Info("Prefetch finished",
		"resolved", stats.Resolved,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed)
	return nil
}

func (c *CacheClearCmd) Run() error {
	settings := config.Load()

	db, err := metacache.Open(settings.CacheDBFile, settings.CacheTTL)
	if err != nil {
		return fmt.Errorf("opening metadata cache: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("Closing metadata cache", "error", err)
		}
	}()

	if c.ExpiredOnly {
		if err := db.ClearExpired(); err != nil {
			return fmt.Errorf("clearing expired cache entries: %w", err)
		}
		slog.Info("Expired metadata cache entries removed")
		return nil
	}

	removed, err := db.Clear()
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	slog.Info("Metadata cache cleared", "entries", removed)
	return nil
}
