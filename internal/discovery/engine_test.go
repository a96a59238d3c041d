package discovery

import (
	"context"
	"testing"

	"github.com/blampe/shelfpress/internal/config"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDialect replays a fixed sequence of pages, one per call to
// fetchPage, so the pagination engine's loop logic (early-stop heuristics,
// dedup, caps) can be tested without a real HTTP round trip.
type scriptedDialect struct {
	pages []page
	calls int
	size  int
}

func (s *scriptedDialect) firstPage() int      { return 0 }
func (s *scriptedDialect) pageSize() int       { return s.size }
func (s *scriptedDialect) budgetPageSize() int { return s.size }

func (s *scriptedDialect) fetchPage(_ context.Context, _ *session.Client, _ string, _ int, _ int) (page, error) {
	p := s.pages[s.calls]
	s.calls++
	return p, nil
}

func bookCandidate(id, title string) candidate {
	return candidate{Title: title, ArchiveID: id, ISBN: "9781234567897", Format: "ebook"}
}

func TestPageBudget(t *testing.T) {
	assert.Equal(t, 5, pageBudget(50, 100, 100), "floor of 5 even for a single expected page")
	assert.Equal(t, 7, pageBudget(450, 100, 100), "ceil(450/100)+2 = 7")
	assert.Equal(t, 10, pageBudget(10000, 100, 10), "bounded by maxPages")
}

func TestPageBudgetUnknownExpectedCountUsesMaxPages(t *testing.T) {
	assert.Equal(t, 100, pageBudget(0, 100, 100))
	assert.Equal(t, 30, pageBudget(0, 100, 30))
}

func TestEngineRunStopsOnExpectedCount(t *testing.T) {
	// Expected count reached mid-page.
	d := &scriptedDialect{
		pages: []page{
			{candidates: []candidate{bookCandidate("1", "Book One Is Here"), bookCandidate("2", "Book Two Is Here")}, hasNext: true},
			{candidates: []candidate{bookCandidate("3", "Book Three Is Here")}, hasNext: true},
		},
		size: 100,
	}
	e := &Engine{dialect: d, cfg: config.Config{MaxPagesPerSkill: 100}}
	m, err := e.Run(context.Background(), Topic{Name: "golang", ExpectedCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalBooks)
	assert.Equal(t, 1, d.calls, "should stop after the first page once expected_count is reached")
}

func TestEngineRunStopsOnConsecutiveEmptyPages(t *testing.T) {
	// Three consecutive pages with nothing relevant triggers early stop.
	empty := page{candidates: []candidate{{Title: "short", Format: "ebook"}}, hasNext: true}
	d := &scriptedDialect{
		pages: []page{empty, empty, empty, {candidates: []candidate{bookCandidate("9", "A Relevant Book Here")}, hasNext: true}},
		size:  100,
	}
	e := &Engine{dialect: d, cfg: config.Config{MaxPagesPerSkill: 100}}
	m, err := e.Run(context.Background(), Topic{Name: "golang", ExpectedCount: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalBooks)
	assert.Equal(t, 3, d.calls, "should stop after 3 consecutive empty pages without fetching the 4th")
}

func TestEngineRunStopsOnNoNextPage(t *testing.T) {
	// Dialect reports no further pages before any other stop condition.
	d := &scriptedDialect{
		pages: []page{
			{candidates: []candidate{bookCandidate("1", "Book One Is Here")}, hasNext: false},
		},
		size: 100,
	}
	e := &Engine{dialect: d, cfg: config.Config{MaxPagesPerSkill: 100}}
	m, err := e.Run(context.Background(), Topic{Name: "golang", ExpectedCount: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalBooks)
	assert.Equal(t, 1, d.calls)
}

func TestEngineRunDeduplicatesAcrossPages(t *testing.T) {
	d := &scriptedDialect{
		pages: []page{
			{candidates: []candidate{bookCandidate("1", "Book One Is Here")}, hasNext: true},
			{candidates: []candidate{bookCandidate("1", "Book One Is Here")}, hasNext: false},
		},
		size: 100,
	}
	e := &Engine{dialect: d, cfg: config.Config{MaxPagesPerSkill: 100}}
	m, err := e.Run(context.Background(), Topic{Name: "golang", ExpectedCount: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalBooks, "the same archive ID across two pages counts once")
}

func TestV1DialectBudgetPageSizeDivergesFromRequestedPageSize(t *testing.T) {
	// v1 requests rows=100 but the provider's actual results bucket
	// is ~15/page; the budget math must use the real yield, not the
	// requested size, or it exhausts early for any sizable expected_count.
	var d v1Dialect
	assert.Equal(t, 100, d.pageSize())
	assert.Equal(t, 15, d.budgetPageSize())
	assert.Greater(t, pageBudget(300, d.budgetPageSize(), 100), pageBudget(300, d.pageSize(), 100))
}

func TestEngineRunRecordsPagesFetchedAndStopReason(t *testing.T) {
	d := &scriptedDialect{
		pages: []page{
			{candidates: []candidate{bookCandidate("1", "Book One Is Here"), bookCandidate("2", "Book Two Is Here")}, hasNext: true},
		},
		size: 100,
	}
	e := &Engine{dialect: d, cfg: config.Config{MaxPagesPerSkill: 100}}
	m, err := e.Run(context.Background(), Topic{Name: "golang", ExpectedCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, m.PagesFetched)
	assert.Equal(t, StopExpectedCountReached, m.StopReason)
}

func TestEngineRunHonorsMaxBooksPerSkill(t *testing.T) {
	d := &scriptedDialect{
		pages: []page{
			{candidates: []candidate{bookCandidate("1", "Book One Is Here"), bookCandidate("2", "Book Two Is Here"), bookCandidate("3", "Book Three Is Here")}, hasNext: true},
		},
		size: 100,
	}
	e := &Engine{dialect: d, cfg: config.Config{MaxPagesPerSkill: 100, MaxBooksPerSkill: 2}}
	m, err := e.Run(context.Background(), Topic{Name: "golang", ExpectedCount: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalBooks)
}
