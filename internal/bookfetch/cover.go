package bookfetch

import (
	"context"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/blampe/shelfpress/internal/session"
)

const minAcceptableCoverBytes = 10 * 1024

var widthParam = regexp.MustCompile(`([?&])w=\d+`)

// coverVariants produces progressively larger candidate URLs for a cover
// image that carries a small-width query parameter or a "/small/" path
// segment, ending with the original URL as the final fallback.
func coverVariants(raw string) []string {
	variants := []string{}

	if widthParam.MatchString(raw) {
		variants = append(variants, widthParam.ReplaceAllString(raw, "${1}w=800"))
	}
	if strings.Contains(raw, "/small/") {
		variants = append(variants, strings.Replace(raw, "/small/", "/large/", 1))
	}
	variants = append(variants, raw)
	return variants
}

// FetchCover tries each variant in order, accepting the first response of
// at least minAcceptableCoverBytes. If every variant is undersized, the
// last successfully fetched response wins (preferring the original URL
// over no cover at all).
func FetchCover(ctx context.Context, client *session.Client, rawURL string) ([]byte, string, error) {
	if rawURL == "" {
		return nil, "", nil
	}

	var bestBytes []byte
	var bestExt string

	for _, variant := range coverVariants(rawURL) {
		resp, err := client.Get(ctx, variant, session.Options{})
		if err != nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || len(body) == 0 {
			continue
		}

		ext := extFromURL(variant)
		if len(body) >= minAcceptableCoverBytes {
			return body, ext, nil
		}
		// Undersized: remember it and keep trying. Later variants
		// overwrite earlier ones so the original URL, tried last, is
		// what survives when every variant comes back small.
		bestBytes, bestExt = body, ext
	}

	return bestBytes, bestExt, nil
}

func extFromURL(raw string) string {
	u, err := url.Parse(raw)
	path := raw
	if err == nil {
		path = u.Path
	}
	switch {
	case strings.HasSuffix(path, ".png"):
		return ".png"
	case strings.HasSuffix(path, ".gif"):
		return ".gif"
	case strings.HasSuffix(path, ".webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
