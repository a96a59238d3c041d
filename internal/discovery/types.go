// Package discovery paginates the search API per topic, filters results
// for relevance, and writes topic manifests.
package discovery

import "time"

// BookRef identifies one discovered book.
type BookRef struct {
	Title        string `json:"title"`
	BookID       string `json:"id"`
	CanonicalURL string `json:"url"`
	ISBN         string `json:"isbn,omitempty"`
	Format       string `json:"format"`
}

// Manifest is the persisted per-topic result of a discovery run.
type Manifest struct {
	TopicName    string    `json:"skill_name"`
	DiscoveredAt time.Time `json:"discovery_timestamp"`
	TotalBooks   int       `json:"total_books"`
	Books        []BookRef `json:"books"`

	// PagesFetched and StopReason are a supplemental recap of how
	// discovery ended for this topic; readers that only understand the
	// base fields can ignore them.
	PagesFetched int        `json:"pages_fetched,omitempty"`
	StopReason   StopReason `json:"stop_reason,omitempty"`
}

// StopReason names the terminal condition that ended pagination for a
// topic.
type StopReason string

const (
	StopExpectedCountReached StopReason = "expected_count_reached"
	StopConsecutiveEmpty     StopReason = "three_consecutive_empty_pages"
	StopNoNextPage           StopReason = "no_next_page"
	StopPageBudgetExhausted  StopReason = "page_budget_exhausted"
	StopMaxBooksCap          StopReason = "max_books_per_skill_cap"
)

// Topic is one entry from the user-selected catalogue.
type Topic struct {
	Name          string
	ExpectedCount int // 0 means unknown
}

// candidate is the raw shape returned by either search dialect before the
// relevance filter and field normalization are applied.
type candidate struct {
	Title     string
	ArchiveID string
	ISBN      string
	Format    string
	Language  string
	Subjects  []string
	InfoURL   string
}
