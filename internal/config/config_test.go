package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, DiscoveryV2, d.DiscoveryAPI)
	assert.Equal(t, FormatDual, d.EPUBFormat)
	assert.True(t, d.Resume)
	assert.Equal(t, 100, d.MaxPagesPerSkill)
}

func TestWithDefaultsOverlaysOnlyNonZeroFields(t *testing.T) {
	cfg := WithDefaults(Config{
		Upstream:   "example.com",
		CookieFile: "cookies.json",
		EPUBFormat: FormatKindle,
	})

	assert.Equal(t, "example.com", cfg.Upstream)
	assert.Equal(t, "cookies.json", cfg.CookieFile)
	assert.Equal(t, FormatKindle, cfg.EPUBFormat)
	// Untouched fields fall back to Defaults().
	assert.Equal(t, "books_by_skills", cfg.BaseDirectory)
	assert.Equal(t, DiscoveryV2, cfg.DiscoveryAPI)
	assert.Equal(t, 1500*time.Millisecond, cfg.DiscoveryDelay)
}

func TestWithDefaultsAlwaysTakesBoolFieldsVerbatim(t *testing.T) {
	cfg := WithDefaults(Config{Resume: false, ForceRedownload: true})
	assert.False(t, cfg.Resume, "an explicit false must not be treated as zero-value-so-fall-back")
	assert.True(t, cfg.ForceRedownload)
}
