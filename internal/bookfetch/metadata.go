package bookfetch

import (
	"context"
	"fmt"
	"io"

	"github.com/blampe/shelfpress/internal/session"
	"github.com/blampe/shelfpress/internal/shelferrors"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var (
	pathTitle       = jp.C("title")
	pathAuthors     = jp.C("authors")
	pathPublisher   = jp.C("publisher")
	pathISBN        = jp.C("isbn")
	pathDescription = jp.C("description")
	pathSubjects    = jp.C("subjects")
	pathRights      = jp.C("rights")
	pathReleaseDate = jp.C("release_date")
	pathCoverURL    = jp.C("cover_url")
	pathChapterURL  = jp.C("chapter_manifest_url")

	pathChapters     = jp.C("chapters")
	pathContentURL   = jp.C("content_url")
	pathAssetBaseURL = jp.C("asset_base_url")
	pathManifestNext = jp.C("next")
)

// FetchMetadata retrieves GET /api/v1/book/{id}/ and decodes the fields
// needed to drive the rest of the pipeline. A JSON endpoint answering
// with HTML is classified AuthFailed by the session client itself.
func FetchMetadata(ctx context.Context, client *session.Client, bookID string) (Metadata, error) {
	path := fmt.Sprintf("/api/v1/book/%s/", bookID)
	resp, err := client.Get(ctx, path, session.Options{
		Headers: map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Metadata{}, shelferrors.Wrap(shelferrors.TransportError, "reading book metadata", err)
	}
	return parseMetadata(body)
}

func parseMetadata(body []byte) (Metadata, error) {
	data, err := oj.Parse(body)
	if err != nil {
		return Metadata{}, shelferrors.Wrap(shelferrors.ParseError, "parsing book metadata", err)
	}

	return Metadata{
		Title:              str1(pathTitle.Get(data)),
		Authors:            strs(pathAuthors.Get(data)),
		Publisher:          str1(pathPublisher.Get(data)),
		ISBN:               str1(pathISBN.Get(data)),
		Description:        str1(pathDescription.Get(data)),
		Subjects:           strs(pathSubjects.Get(data)),
		Rights:             str1(pathRights.Get(data)),
		ReleaseDate:        str1(pathReleaseDate.Get(data)),
		CoverURL:           str1(pathCoverURL.Get(data)),
		ChapterManifestURL: str1(pathChapterURL.Get(data)),
		Raw:                body,
	}, nil
}

// FetchChapterManifest paginates the chapter-manifest URL until
// exhausted, returning chapter descriptors in the provider's authoritative
// order.
func FetchChapterManifest(ctx context.Context, client *session.Client, manifestURL string) ([]chapterDescriptor, error) {
	var all []chapterDescriptor
	next := manifestURL

	for next != "" {
		resp, err := client.Get(ctx, next, session.Options{
			Headers: map[string]string{"Accept": "application/json"},
		})
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, shelferrors.Wrap(shelferrors.TransportError, "reading chapter manifest", err)
		}

		page, pageNext, err := parseChapterPage(body)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		next = pageNext
	}

	return all, nil
}

func parseChapterPage(body []byte) (page []chapterDescriptor, next string, err error) {
	data, err := oj.Parse(body)
	if err != nil {
		return nil, "", shelferrors.Wrap(shelferrors.ParseError, "parsing chapter manifest", err)
	}

	items := pathChapters.Get(data)
	if len(items) > 0 {
		if arr, ok := items[0].([]any); ok {
			for _, item := range arr {
				page = append(page, chapterDescriptor{
					ContentURL:   str1(pathContentURL.Get(item)),
					AssetBaseURL: str1(pathAssetBaseURL.Get(item)),
				})
			}
		}
	}

	if vals := pathManifestNext.Get(data); len(vals) > 0 {
		if s, ok := vals[0].(string); ok {
			next = s
		}
	}

	return page, next, nil
}

func str1(vals []any) string {
	if len(vals) == 0 {
		return ""
	}
	s, _ := vals[0].(string)
	return s
}

func strs(vals []any) []string {
	if len(vals) == 0 {
		return nil
	}
	arr, ok := vals[0].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
