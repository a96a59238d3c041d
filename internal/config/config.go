// Package config holds the acquisition pipeline's configuration struct.
// This is the one external interface the CLI frontend populates;
// everything else in this module treats Config as an opaque input.
package config

import "time"

// EPUBFormat selects which e-book profile(s) a book is built in.
type EPUBFormat string

const (
	FormatLegacy   EPUBFormat = "legacy"   // standard profile only
	FormatEnhanced EPUBFormat = "enhanced" // reserved alias for legacy, kept for upgrade compatibility
	FormatKindle   EPUBFormat = "kindle"   // reader-optimized profile only
	FormatDual     EPUBFormat = "dual"     // both profiles
)

// DiscoveryAPIVersion selects the search pagination dialect.
type DiscoveryAPIVersion string

const (
	DiscoveryV1 DiscoveryAPIVersion = "v1"
	DiscoveryV2 DiscoveryAPIVersion = "v2"
)

// Config is the full set of tunables for a run. Every field is
// optional; Defaults() returns the zero-config baseline.
type Config struct {
	BaseDirectory     string              `json:"base_directory"`
	BookIDsDirectory  string              `json:"book_ids_directory"`
	DiscoveryAPI      DiscoveryAPIVersion `json:"discovery_api_version"`
	MaxBooksPerSkill  int                 `json:"max_books_per_skill"` // 0 = unlimited
	MaxPagesPerSkill  int                 `json:"max_pages_per_skill"`
	DiscoveryDelay    time.Duration       `json:"discovery_delay"`
	DownloadDelay     time.Duration       `json:"download_delay"`
	SessionReuseDelay time.Duration       `json:"session_reuse_delay"`
	EPUBFormat        EPUBFormat          `json:"epub_format"`
	Resume            bool                `json:"resume"`
	ForceRedownload   bool                `json:"force_redownload"`
	TokenSaveInterval int                 `json:"token_save_interval"`
	ProgressFile      string              `json:"progress_file"`

	// Upstream is the book-provider host (e.g. "www.example.com"). Required;
	// has no meaningful default.
	Upstream string `json:"upstream"`
	// CookieFile is the path to the initial (and persisted) cookie jar.
	CookieFile string `json:"cookie_file"`
	// Concurrency is always forced to 1 by internal/ratelimit.Guard; kept
	// here only so a caller's accidental >1 value is visible to log.
	Concurrency int `json:"concurrency"`
	// ManifestFreshness is how long a discovery run trusts an existing
	// topic manifest instead of re-running search pagination for that
	// topic. WithDefaults replaces zero with the default; a non-positive
	// value that reaches the job controller disables the reuse.
	ManifestFreshness time.Duration `json:"manifest_freshness"`
}

// Defaults returns the configuration baseline.
func Defaults() Config {
	return Config{
		BaseDirectory:     "books_by_skills",
		BookIDsDirectory:  "book_ids",
		DiscoveryAPI:      DiscoveryV2,
		MaxBooksPerSkill:  0,
		MaxPagesPerSkill:  100,
		DiscoveryDelay:    1500 * time.Millisecond,
		DownloadDelay:     10 * time.Second,
		SessionReuseDelay: 2 * time.Second,
		EPUBFormat:        FormatDual,
		Resume:            true,
		ForceRedownload:   false,
		TokenSaveInterval: 5,
		ProgressFile:      "",
		Concurrency:       1,
		ManifestFreshness: 24 * time.Hour,
	}
}

// WithDefaults overlays cfg's non-zero fields onto Defaults(), so a partially
// populated Config still gets sensible values for everything it left zero.
func WithDefaults(cfg Config) Config {
	d := Defaults()
	if cfg.BaseDirectory != "" {
		d.BaseDirectory = cfg.BaseDirectory
	}
	if cfg.BookIDsDirectory != "" {
		d.BookIDsDirectory = cfg.BookIDsDirectory
	}
	if cfg.DiscoveryAPI != "" {
		d.DiscoveryAPI = cfg.DiscoveryAPI
	}
	if cfg.MaxBooksPerSkill != 0 {
		d.MaxBooksPerSkill = cfg.MaxBooksPerSkill
	}
	if cfg.MaxPagesPerSkill != 0 {
		d.MaxPagesPerSkill = cfg.MaxPagesPerSkill
	}
	if cfg.DiscoveryDelay != 0 {
		d.DiscoveryDelay = cfg.DiscoveryDelay
	}
	if cfg.DownloadDelay != 0 {
		d.DownloadDelay = cfg.DownloadDelay
	}
	if cfg.SessionReuseDelay != 0 {
		d.SessionReuseDelay = cfg.SessionReuseDelay
	}
	if cfg.EPUBFormat != "" {
		d.EPUBFormat = cfg.EPUBFormat
	}
	d.Resume = cfg.Resume
	d.ForceRedownload = cfg.ForceRedownload
	if cfg.TokenSaveInterval != 0 {
		d.TokenSaveInterval = cfg.TokenSaveInterval
	}
	if cfg.ProgressFile != "" {
		d.ProgressFile = cfg.ProgressFile
	}
	d.Upstream = cfg.Upstream
	d.CookieFile = cfg.CookieFile
	if cfg.Concurrency != 0 {
		d.Concurrency = cfg.Concurrency
	}
	if cfg.ManifestFreshness != 0 {
		d.ManifestFreshness = cfg.ManifestFreshness
	}
	return d
}
