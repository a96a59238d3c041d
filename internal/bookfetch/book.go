package bookfetch

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/blampe/shelfpress/internal/logging"
	"github.com/blampe/shelfpress/internal/session"
)

// FetchBook retrieves everything needed to package one book: metadata,
// every chapter (in manifest order), and the deduplicated set of
// stylesheet/image URLs referenced across all of them. It does not
// download asset bytes; that's the asset downloader's job.
func FetchBook(ctx context.Context, client *session.Client, bookID string) (Book, error) {
	meta, err := FetchMetadata(ctx, client, bookID)
	if err != nil {
		return Book{}, err
	}

	descriptors, err := FetchChapterManifest(ctx, client, meta.ChapterManifestURL)
	if err != nil {
		return Book{}, err
	}

	book := Book{
		Metadata:     meta,
		Stylesheets:  map[string]string{},
		Images:       map[string]string{},
		InlineStyles: map[string][]byte{},
	}

	for i, desc := range descriptors {
		chapter, err := FetchChapter(ctx, client, i+1, desc)
		if err != nil {
			logging.Log(ctx).Error("chapter fetch failed", "book", bookID, "index", i+1, "err", err)
			return Book{}, err
		}

		for name, src := range chapter.Stylesheets {
			book.Stylesheets[name] = src
		}
		for name, src := range chapter.Images {
			book.Images[name] = src
		}
		for name, css := range chapter.InlineStyles {
			book.InlineStyles[name] = css
		}

		book.Chapters = append(book.Chapters, chapter)
	}

	coverBytes, coverExt, err := FetchCover(ctx, client, meta.CoverURL)
	if err != nil {
		logging.Log(ctx).Warn("cover fetch failed", "book", bookID, "err", err)
	}
	book.CoverBytes = coverBytes
	book.CoverExt = coverExt

	return book, nil
}

// resolveAssetURL joins an asset's sanitized local name back against the
// chapter's asset base URL, since only the basename survives
// sanitization.
func resolveAssetURL(base, localName string) string {
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + localName
	}
	u.Path = path.Join(u.Path, localName)
	return u.String()
}
