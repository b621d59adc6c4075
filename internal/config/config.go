// Package config centralizes viper-backed application settings.
package config

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Defaults used when neither the config file nor the environment provides
// a value.
const (
	DefaultCoverDir        = "./covers/"
	DefaultCacheDBFile     = "./bookstand-cache.db"
	DefaultCacheTTL        = 720 * time.Hour
	DefaultNegativeTTL     = 168 * time.Hour
	DefaultPrefetchWorkers = 4
	DefaultCardWidth       = 140
	DefaultCardHeight      = 200
)

// Settings is the resolved application configuration. It is read out of
// viper once and passed explicitly to the components that need it.
type Settings struct {
	// CatalogFile is an optional JSON/YAML catalog; empty means the
	// built-in demo catalog.
	CatalogFile string
	// CoverDir is where the prefetch command saves cover images.
	CoverDir string
	// CacheDBFile is the SQLite metadata cache location.
	CacheDBFile string
	// CacheTTL bounds the age of cached metadata lookups.
	CacheTTL time.Duration
	// FailureCooldown controls how long a failed cover lookup suppresses
	// further network attempts. Zero means for the life of the process.
	FailureCooldown time.Duration
	// PrefetchWorkers bounds prefetch concurrency.
	PrefetchWorkers int
	// CardWidth and CardHeight are the cover dimensions used by the UI.
	CardWidth  int
	CardHeight int
}

// SetDefaults registers default values with viper. Call before reading
// the config file.
func SetDefaults() {
	viper.SetDefault("CoverDir", DefaultCoverDir)
	viper.SetDefault("CatalogFile", "")

	viper.SetDefault("cache.dbfile", DefaultCacheDBFile)
	viper.SetDefault("cache.ttl", "720h")

	viper.SetDefault("covers.failure_cooldown", "0")
	viper.SetDefault("covers.card_width", DefaultCardWidth)
	viper.SetDefault("covers.card_height", DefaultCardHeight)

	viper.SetDefault("prefetch.workers", DefaultPrefetchWorkers)
}

// Load materializes Settings from viper's current state.
func Load() Settings {
	s := Settings{
		CatalogFile:     viper.GetString("CatalogFile"),
		CoverDir:        viper.GetString("CoverDir"),
		CacheDBFile:     viper.GetString("cache.dbfile"),
		CacheTTL:        parseDuration("cache.ttl", DefaultCacheTTL),
		FailureCooldown: parseDuration("covers.failure_cooldown", 0),
		PrefetchWorkers: viper.GetInt("prefetch.workers"),
		CardWidth:       viper.GetInt("covers.card_width"),
		CardHeight:      viper.GetInt("covers.card_height"),
	}

	if s.PrefetchWorkers <= 0 {
		s.PrefetchWorkers = DefaultPrefetchWorkers
	}
	if s.CardWidth <= 0 {
		s.CardWidth = DefaultCardWidth
	}
	if s.CardHeight <= 0 {
		s.CardHeight = DefaultCardHeight
	}

	return s
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	if raw == "" || raw == "0" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in config, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}
