package discovery

import (
	"context"
	"math"
	"time"

	"github.com/blampe/shelfpress/internal/config"
	"github.com/blampe/shelfpress/internal/logging"
	"github.com/blampe/shelfpress/internal/session"
)

// Engine runs per-topic search pagination against one dialect.
type Engine struct {
	client  *session.Client
	dialect dialect
	cfg     config.Config
}

// New builds an Engine for the configured API version.
func New(client *session.Client, cfg config.Config) *Engine {
	var d dialect
	if cfg.DiscoveryAPI == config.DiscoveryV1 {
		d = v1Dialect{}
	} else {
		d = v2Dialect{}
	}
	return &Engine{client: client, dialect: d, cfg: cfg}
}

// pageBudget computes the per-topic page cap from the expected count, per
// the floor/ceiling rule: ceil(E/pageSize)+2, bounded to [5, maxPages].
func pageBudget(expected, pageSize, maxPages int) int {
	if expected <= 0 {
		return maxPages
	}
	budget := int(math.Ceil(float64(expected)/float64(pageSize))) + 2
	if budget < 5 {
		budget = 5
	}
	if budget > maxPages {
		budget = maxPages
	}
	return budget
}

// Run paginates topic until a terminal condition holds and returns the
// deduplicated, filtered set of accepted books.
func (e *Engine) Run(ctx context.Context, topic Topic) (Manifest, error) {
	maxPages := e.cfg.MaxPagesPerSkill
	if maxPages <= 0 {
		maxPages = 100
	}
	budget := pageBudget(topic.ExpectedCount, e.dialect.budgetPageSize(), maxPages)

	seen := map[string]bool{}
	var books []BookRef
	consecutiveEmpty := 0
	pagesFetched := 0
	stopReason := StopPageBudgetExhausted

	for pageNum := e.dialect.firstPage(); pagesFetched < budget; pageNum++ {
		p, err := e.dialect.fetchPage(ctx, e.client, topic.Name, pageNum, e.dialect.pageSize())
		if err != nil {
			return Manifest{}, err
		}
		pagesFetched++

		accepted := 0
		for _, c := range p.candidates {
			if !relevant(c, topic.Name) {
				continue
			}
			id := c.ArchiveID
			if id == "" {
				id = c.ISBN
			}
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			accepted++
			books = append(books, BookRef{
				Title:        c.Title,
				BookID:       id,
				CanonicalURL: c.InfoURL,
				ISBN:         c.ISBN,
				Format:       c.Format,
			})
		}

		if accepted == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}

		logging.Log(ctx).Debug("discover page", "topic", topic.Name, "page", pageNum, "accepted", accepted, "total", len(books))

		if e.cfg.MaxBooksPerSkill > 0 && len(books) >= e.cfg.MaxBooksPerSkill {
			books = books[:e.cfg.MaxBooksPerSkill]
			stopReason = StopMaxBooksCap
			break
		}
		if topic.ExpectedCount > 0 && len(books) >= topic.ExpectedCount {
			stopReason = StopExpectedCountReached
			break
		}
		if consecutiveEmpty >= 3 {
			stopReason = StopConsecutiveEmpty
			break
		}
		if !p.hasNext {
			stopReason = StopNoNextPage
			break
		}
	}

	return Manifest{
		TopicName:    topic.Name,
		DiscoveredAt: time.Now(),
		TotalBooks:   len(books),
		Books:        books,
		PagesFetched: pagesFetched,
		StopReason:   stopReason,
	}, nil
}
