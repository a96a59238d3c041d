// Package assetref extracts and rewrites image references embedded
// inside CSS text. It's shared by internal/bookfetch (an inline <style>
// block found while parsing a chapter) and internal/asset (an external
// stylesheet's content, once it's been downloaded to disk), so the two
// call sites agree on how a CSS background-image reference becomes a
// packaged Images/ entry.
package assetref

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+)['"]?\s*\)`)
var invalidBasenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeBasename reduces raw to a safe local filename: its basename,
// stripped of any query string, with disallowed characters replaced.
func SanitizeBasename(raw string) string {
	base := path.Base(raw)
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		base = base[:idx]
	}
	base = invalidBasenameChars.ReplaceAllString(base, "_")
	if base == "" || base == "_" {
		base = "asset"
	}
	return base
}

// Resolve joins a reference found inside CSS against its base URL. A base
// whose last path segment has no file extension (a chapter's asset base
// URL, e.g. ".../assets") is treated as a directory even without a
// trailing slash; a base naming a file (a stylesheet's own URL) resolves
// against that file's directory.
func Resolve(base, ref string) string {
	if base == "" {
		return ref
	}
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + ref
	}
	if !strings.HasSuffix(u.Path, "/") && path.Ext(u.Path) == "" {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	return u.ResolveReference(ru).String()
}

// RewriteCSSImageURLs scans css for url(...) references that aren't data
// URIs, resolves each against baseURL, and rewrites the reference in
// place to imageDir/<sanitized-basename> (e.g. "Images" for an inline
// stylesheet living alongside the chapter, or "../Images" for an external
// stylesheet living in Styles/). It returns the rewritten CSS text and
// the set of discovered images (local name -> resolved absolute URL).
func RewriteCSSImageURLs(css, baseURL, imageDir string) (string, map[string]string) {
	images := map[string]string{}
	rewritten := cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		ref := sub[2]
		if strings.HasPrefix(ref, "data:") {
			return match
		}
		local := SanitizeBasename(ref)
		images[local] = Resolve(baseURL, ref)
		return "url(" + imageDir + "/" + local + ")"
	})
	return rewritten, images
}
