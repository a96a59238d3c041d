package asset

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blampe/shelfpress/internal/cache"
	"github.com/blampe/shelfpress/internal/ratelimit"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler func(*http.Request) (*http.Response, error)) *session.Client {
	t.Helper()
	return session.NewClientWithTransport(
		"upstream.example.com", session.NewJar(), ratelimit.NewPolicy(0, 0, 0), "", 0,
		roundTripFunc(handler), time.Millisecond,
	)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func stringResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func errorResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Header: http.Header{}, Body: http.NoBody, Status: "error"}
}

// fakeByteCache is a minimal in-memory stand-in for cache.Cache[[]byte]
// that avoids ristretto's async write buffering so tests can assert call
// counts deterministically.
type fakeByteCache struct {
	entries map[string][]byte
	gets    int32
}

func newFakeByteCache() *fakeByteCache {
	return &fakeByteCache{entries: map[string][]byte{}}
}

func (c *fakeByteCache) Get(ctx context.Context, key string) ([]byte, bool) {
	atomic.AddInt32(&c.gets, 1)
	v, ok := c.entries[key]
	return v, ok
}

func (c *fakeByteCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	v, ok := c.Get(ctx, key)
	return v, time.Hour, ok
}

func (c *fakeByteCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.entries[key] = val
}

func (c *fakeByteCache) Delete(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeByteCache) Expire(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

var _ cache.Cache[[]byte] = (*fakeByteCache)(nil)

func TestDownloadAllFetchesEveryRefIntoDestDir(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return stringResponse("bytes-for-" + r.URL.Path), nil
	})

	d := New(client, nil)
	destDir := t.TempDir()

	refs := map[string]string{
		"cover.png": "/assets/cover.png",
		"style.css": "/assets/style.css",
	}
	results := d.DownloadAll(context.Background(), destDir, refs, ClassImage)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, int32(2), calls)

	coverBytes, err := os.ReadFile(filepath.Join(destDir, "cover.png"))
	require.NoError(t, err)
	assert.Equal(t, "bytes-for-/assets/cover.png", string(coverBytes))
}

func TestDownloadOneRetriesAndEventuallyFails(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return errorResponse(500), nil
	})

	d := New(client, nil)
	var retries int32
	d.OnRetry = func(class Class) {
		assert.Equal(t, ClassImage, class)
		atomic.AddInt32(&retries, 1)
	}
	destDir := t.TempDir()

	err := d.downloadOne(context.Background(), destDir, "broken.png", "/assets/broken.png", ClassImage)
	assert.Error(t, err)
	// 3 asset-level attempts, each itself retried 3x by the session
	// client's own retry transport on a persistent 500 -> 9 total calls.
	assert.Equal(t, int32(maxAttempts*3), calls)
	assert.Equal(t, int32(maxAttempts-1), retries)
}

func TestDownloadOneUsesByteCacheOnHit(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return stringResponse("network-bytes"), nil
	})

	bc := newFakeByteCache()
	bc.entries["/assets/shared.css"] = []byte("cached-bytes")

	d := New(client, bc)
	destDir := t.TempDir()

	err := d.downloadOne(context.Background(), destDir, "shared.css", "/assets/shared.css", ClassStylesheet)
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls, "a cache hit must not touch the network")

	got, err := os.ReadFile(filepath.Join(destDir, "shared.css"))
	require.NoError(t, err)
	assert.Equal(t, "cached-bytes", string(got))
}

func TestDownloadOnePopulatesByteCacheOnMiss(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return stringResponse("fresh-bytes"), nil
	})

	bc := newFakeByteCache()
	d := New(client, bc)
	destDir := t.TempDir()

	err := d.downloadOne(context.Background(), destDir, "new.css", "/assets/new.css", ClassStylesheet)
	require.NoError(t, err)

	cached, ok := bc.entries["/assets/new.css"]
	require.True(t, ok)
	assert.Equal(t, "fresh-bytes", string(cached))
}

func TestExtractCSSImagesRewritesOnDiskStylesheetAndReturnsImages(t *testing.T) {
	destDir := t.TempDir()
	css := `.cover { background: url('bg.png') no-repeat; }`
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "style.css"), []byte(css), 0o644))

	d := New(nil, nil)
	stylesheets := map[string]string{"style.css": "https://cdn.example.com/book-42/assets/style.css"}
	images := d.ExtractCSSImages(context.Background(), destDir, stylesheets)

	require.Len(t, images, 1)
	assert.Equal(t, "https://cdn.example.com/book-42/assets/bg.png", images["bg.png"])

	rewritten, err := os.ReadFile(filepath.Join(destDir, "style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "url(../Images/bg.png)")
}

func TestExtractCSSImagesSkipsMissingStylesheet(t *testing.T) {
	destDir := t.TempDir()
	d := New(nil, nil)
	images := d.ExtractCSSImages(context.Background(), destDir, map[string]string{"missing.css": "https://cdn.example.com/missing.css"})
	assert.Empty(t, images)
}

func TestDownloadAllContinuesPastOneFailure(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if strings.Contains(r.URL.Path, "bad") {
			return errorResponse(500), nil
		}
		return stringResponse("ok"), nil
	})

	d := New(client, nil)
	destDir := t.TempDir()

	refs := map[string]string{
		"good.png": "/assets/good.png",
		"bad.png":  "/assets/bad.png",
	}
	results := d.DownloadAll(context.Background(), destDir, refs, ClassImage)

	var okCount, errCount int
	for _, r := range results {
		if r.Err == nil {
			okCount++
		} else {
			errCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, errCount)
}
