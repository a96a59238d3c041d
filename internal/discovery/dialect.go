package discovery

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/blampe/shelfpress/internal/ratelimit"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/blampe/shelfpress/internal/shelferrors"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// page is one fetched page of search results, normalized to the common
// candidate shape regardless of which dialect produced it.
type page struct {
	candidates []candidate
	hasNext    bool
}

// dialect abstracts the two search API call styles so the pagination
// engine doesn't need to know which one it's driving.
type dialect interface {
	fetchPage(ctx context.Context, client *session.Client, topic string, pageNum int, pageSize int) (page, error)
	// pageSize is the size requested in the query string.
	pageSize() int
	firstPage() int
	// budgetPageSize is the size actually used for the
	// ceil(expected/pageSize)+2 page-budget estimate. For dialects whose
	// requested page size doesn't match what the provider actually
	// returns per page, this differs from pageSize.
	budgetPageSize() int
}

var (
	pathResults  = jp.C("results")
	pathTitle    = jp.C("title")
	pathArchive  = jp.C("archive_id")
	pathISBN     = jp.C("isbn")
	pathFormat   = jp.C("format")
	pathLanguage = jp.C("language")
	pathSubjects = jp.C("subjects")
	pathTopics   = jp.C("topics")
	pathInfoURL  = jp.C("url")
	pathComplete = jp.C("complete")
	pathTotal    = jp.C("total")
	pathNext     = jp.C("next")
)

func decodeCandidates(data any) []candidate {
	results := pathResults.Get(data)
	if len(results) == 0 {
		return nil
	}
	items, ok := results[0].([]any)
	if !ok {
		return nil
	}
	out := make([]candidate, 0, len(items))
	for _, item := range items {
		out = append(out, candidate{
			Title:     firstString(pathTitle.Get(item)),
			ArchiveID: firstString(pathArchive.Get(item)),
			ISBN:      firstString(pathISBN.Get(item)),
			Format:    firstString(pathFormat.Get(item)),
			Language:  firstString(pathLanguage.Get(item)),
			Subjects:  append(firstStrings(pathSubjects.Get(item)), firstStrings(pathTopics.Get(item))...),
			InfoURL:   firstString(pathInfoURL.Get(item)),
		})
	}
	return out
}

func firstString(vals []any) string {
	if len(vals) == 0 {
		return ""
	}
	s, _ := vals[0].(string)
	return s
}

func firstStrings(vals []any) []string {
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

// v1Dialect implements GET /api/v1/search?q={topic}&rows=100&page={1..},
// which requires an authenticated session and reports completion via a
// boolean "complete" field rather than a next-page URL.
type v1Dialect struct{}

func (v1Dialect) firstPage() int { return 1 }
func (v1Dialect) pageSize() int  { return 100 }

// budgetPageSize is 15, not 100: the v1 endpoint's actual results bucket
// is ~15 items per page regardless of the requested rows=100, so the
// page-budget estimate must use the real per-page yield or it exhausts
// its budget far earlier than intended.
func (v1Dialect) budgetPageSize() int { return 15 }

func (v1Dialect) fetchPage(ctx context.Context, client *session.Client, topic string, pageNum int, size int) (page, error) {
	path := fmt.Sprintf("/api/v1/search?q=%s&rows=%d&page=%d", url.QueryEscape(topic), size, pageNum)
	resp, err := client.Get(ctx, path, session.Options{
		Headers: map[string]string{"Accept": "application/json"},
		Class:   ratelimit.Discovery,
	})
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, shelferrors.Wrap(shelferrors.TransportError, "reading v1 search response", err)
	}
	data, err := oj.Parse(body)
	if err != nil {
		return page{}, shelferrors.Wrap(shelferrors.ParseError, "parsing v1 search response", err)
	}

	complete := false
	if vals := pathComplete.Get(data); len(vals) > 0 {
		complete, _ = vals[0].(bool)
	}
	return page{candidates: decodeCandidates(data), hasNext: !complete}, nil
}

// v2Dialect implements GET /api/v2/search?query=*&topics={topic}&limit=100&page={0..},
// unauthenticated, 0-indexed, reporting completion via a next-page URL.
type v2Dialect struct{}

func (v2Dialect) firstPage() int      { return 0 }
func (v2Dialect) pageSize() int       { return 100 }
func (v2Dialect) budgetPageSize() int { return 100 }

func (v2Dialect) fetchPage(ctx context.Context, client *session.Client, topic string, pageNum int, size int) (page, error) {
	path := fmt.Sprintf("/api/v2/search?query=*&topics=%s&limit=%d&page=%d", url.QueryEscape(topic), size, pageNum)
	resp, err := client.Get(ctx, path, session.Options{
		Headers: map[string]string{"Accept": "application/json"},
		Class:   ratelimit.Discovery,
	})
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, shelferrors.Wrap(shelferrors.TransportError, "reading v2 search response", err)
	}
	data, err := oj.Parse(body)
	if err != nil {
		return page{}, shelferrors.Wrap(shelferrors.ParseError, "parsing v2 search response", err)
	}

	hasNext := false
	if vals := pathNext.Get(data); len(vals) > 0 && vals[0] != nil {
		if s, ok := vals[0].(string); ok && s != "" {
			hasNext = true
		}
	}
	return page{candidates: decodeCandidates(data), hasNext: hasNext}, nil
}
