package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry records one book that's mid-flight in the acquisition pipeline.
type Entry struct {
	BookID    string
	Topic     string
	Profile   string
	StartedAt time.Time
}

// Ledger is the embedded resume ledger: it tracks in-flight work across
// restarts so a crash mid-book is logged on the next run rather than
// silently retried or silently forgotten. It never overrides the on-disk
// existence check used elsewhere to decide what to skip -- it's purely
// advisory logging.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (creating if necessary) a sqlite-backed ledger at path.
func NewLedger(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS inflight (
			book_id    TEXT NOT NULL,
			topic      TEXT NOT NULL,
			profile    TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			PRIMARY KEY (book_id, topic, profile)
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// Persist records bookID/topic/profile as in-flight.
func (l *Ledger) Persist(ctx context.Context, bookID, topic, profile string, startedAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO inflight (book_id, topic, profile, started_at) VALUES (?, ?, ?, ?)`,
		bookID, topic, profile, startedAt.Unix())
	return err
}

// Delete records bookID/topic/profile as completed (success or permanent
// failure -- either way it's no longer in-flight).
func (l *Ledger) Delete(ctx context.Context, bookID, topic, profile string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM inflight WHERE book_id = ? AND topic = ? AND profile = ?`,
		bookID, topic, profile)
	return err
}

// Persisted returns every entry that was in-flight when the ledger was
// last written, typically meaning the prior run crashed or was killed
// mid-book.
func (l *Ledger) Persisted(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT book_id, topic, profile, started_at FROM inflight`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAt int64
		if err := rows.Scan(&e.BookID, &e.Topic, &e.Profile, &startedAt); err != nil {
			continue
		}
		e.StartedAt = time.Unix(startedAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
