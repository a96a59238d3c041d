// Package asset downloads images and stylesheets referenced by a book's
// chapters, retrying transient failures and isolating permanent ones so a
// single missing image or stylesheet never fails the whole book.
package asset

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/blampe/shelfpress/internal/assetref"
	"github.com/blampe/shelfpress/internal/cache"
	"github.com/blampe/shelfpress/internal/logging"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/blampe/shelfpress/internal/shelferrors"
	"golang.org/x/sync/singleflight"
)

// cacheTTL is how long a fetched asset's bytes stay memoized. Many books
// in the same topic share the provider's publisher-wide stylesheet; this
// keeps a second book from re-fetching it over the network.
const cacheTTL = 24 * time.Hour

// Class distinguishes the two asset kinds for retry/failure accounting.
type Class string

const (
	ClassImage      Class = "image"
	ClassStylesheet Class = "stylesheet"
)

const maxAttempts = 3

// Result records the outcome of one asset download.
type Result struct {
	LocalName string
	Class     Class
	Err       error // nil on success
}

// Downloader fetches a book's images and stylesheets into its output
// folder, deduplicating concurrent requests for the same URL via
// singleflight (the job runs one book at a time, but a single chapter can
// reference the same stylesheet URL many times).
type Downloader struct {
	client *session.Client
	group  singleflight.Group
	bytes  cache.Cache[[]byte]

	// OnRetry, when set, is called once per retried fetch attempt with
	// the asset's class. Used for retry accounting.
	OnRetry func(class Class)
}

// New creates a Downloader bound to client. bytesCache may be nil, in
// which case every asset is fetched fresh.
func New(client *session.Client, bytesCache cache.Cache[[]byte]) *Downloader {
	return &Downloader{client: client, bytes: bytesCache}
}

// DownloadAll fetches every entry in refs (local name -> source URL) into
// destDir, serially, retrying each up to maxAttempts times. It returns one
// Result per entry; callers decide how to react to failures (skip for
// images, omit-from-manifest for stylesheets).
func (d *Downloader) DownloadAll(ctx context.Context, destDir string, refs map[string]string, class Class) []Result {
	results := make([]Result, 0, len(refs))
	for name, src := range refs {
		err := d.downloadOne(ctx, destDir, name, src, class)
		results = append(results, Result{LocalName: name, Class: class, Err: err})
		if err != nil {
			logging.Log(ctx).Warn("asset permanently failed", "name", name, "class", class, "err", err)
		}
	}
	return results
}

func (d *Downloader) downloadOne(ctx context.Context, destDir, name, src string, class Class) error {
	_, err, _ := d.group.Do(destDir+"|"+name, func() (any, error) {
		return nil, d.fetchWithRetry(ctx, destDir, name, src, class)
	})
	return err
}

func (d *Downloader) fetchWithRetry(ctx context.Context, destDir, name, src string, class Class) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.fetchOnce(ctx, destDir, name, src); err != nil {
			lastErr = err
			if attempt < maxAttempts {
				if d.OnRetry != nil {
					d.OnRetry(class)
				}
				time.Sleep(time.Duration(attempt) * time.Second)
			}
			continue
		}
		return nil
	}
	return shelferrors.Wrap(shelferrors.AssetMissing, "downloading "+name, lastErr)
}

// ExtractCSSImages scans every already-downloaded stylesheet in styleDir
// for CSS url(...) image references, rewrites each reference in place to
// point at ../Images/<name>, and returns the newly discovered images
// (local name -> resolved source URL) so the caller can download them the
// same way it downloaded the stylesheets themselves. stylesheets maps
// each stylesheet's local name to the source URL it was fetched from,
// used to resolve a relative CSS reference to an absolute one. A
// stylesheet that failed to download (and so isn't present in styleDir)
// is silently skipped.
func (d *Downloader) ExtractCSSImages(ctx context.Context, styleDir string, stylesheets map[string]string) map[string]string {
	images := map[string]string{}
	for name, src := range stylesheets {
		path := filepath.Join(styleDir, name)
		css, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		rewritten, found := assetref.RewriteCSSImageURLs(string(css), src, "../Images")
		if len(found) == 0 {
			continue
		}
		if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
			logging.Log(ctx).Warn("rewriting stylesheet image references failed", "name", name, "err", err)
			continue
		}
		for localName, imgSrc := range found {
			images[localName] = imgSrc
		}
	}
	return images
}

func (d *Downloader) fetchOnce(ctx context.Context, destDir, name, src string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	if d.bytes != nil {
		if cached, ok := d.bytes.Get(ctx, src); ok {
			return os.WriteFile(filepath.Join(destDir, name), cached, 0o644)
		}
	}

	resp, err := d.client.Get(ctx, src, session.Options{Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if d.bytes != nil {
		d.bytes.Set(ctx, src, body, cacheTTL)
	}
	return os.WriteFile(filepath.Join(destDir, name), body, 0o644)
}
