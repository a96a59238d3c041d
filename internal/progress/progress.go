// Package progress maintains the in-memory job checkpoint state and
// serializes it to disk on the schedule the job controller drives.
package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/blampe/shelfpress/internal/store"
)

// Status is one of the job lifecycle states.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusInProgress  Status = "in_progress"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// FailedItem records one book or topic that could not be completed.
type FailedItem struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// State is the full progress checkpoint, schema-versioned so older files
// remain loadable.
type State struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	StartTime     time.Time `json:"start_time"`
	Status        Status    `json:"status"`

	TotalSkills     int `json:"total_skills"`
	CompletedSkills int `json:"completed_skills"`
	TotalBooks      int `json:"total_books"`
	CompletedBooks  int `json:"completed_books"`

	FailedItems map[string]FailedItem `json:"failed_items"`

	CurrentActivity string    `json:"current_activity"`
	Checkpoints     []string  `json:"checkpoints"`
	LastUpdate      time.Time `json:"last_update"`

	// unknownFields preserves any keys this version of State doesn't know
	// about, so a future schema's extra fields survive a round trip
	// through an older binary.
	unknownFields map[string]json.RawMessage
}

// CurrentSchemaVersion is the schema version this build writes.
const CurrentSchemaVersion = 1

// New creates a fresh State for a new run.
func New(sessionID string, totalSkills int) *State {
	now := time.Now()
	return &State{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     sessionID,
		StartTime:     now,
		Status:        StatusInitialized,
		TotalSkills:   totalSkills,
		FailedItems:   map[string]FailedItem{},
		LastUpdate:    now,
	}
}

// Load reads a progress file, filling defaults for any field missing from
// an older version's file and preserving unrecognized keys.
func Load(path string) (*State, error) {
	data, err := store.ReadOrNil(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	s := &State{
		FailedItems:   map[string]FailedItem{},
		unknownFields: map[string]json.RawMessage{},
	}
	known := map[string]func(json.RawMessage) error{
		"schema_version":   func(r json.RawMessage) error { return json.Unmarshal(r, &s.SchemaVersion) },
		"session_id":       func(r json.RawMessage) error { return json.Unmarshal(r, &s.SessionID) },
		"start_time":       func(r json.RawMessage) error { return json.Unmarshal(r, &s.StartTime) },
		"status":           func(r json.RawMessage) error { return json.Unmarshal(r, &s.Status) },
		"total_skills":     func(r json.RawMessage) error { return json.Unmarshal(r, &s.TotalSkills) },
		"completed_skills": func(r json.RawMessage) error { return json.Unmarshal(r, &s.CompletedSkills) },
		"total_books":      func(r json.RawMessage) error { return json.Unmarshal(r, &s.TotalBooks) },
		"completed_books":  func(r json.RawMessage) error { return json.Unmarshal(r, &s.CompletedBooks) },
		"failed_items":     func(r json.RawMessage) error { return json.Unmarshal(r, &s.FailedItems) },
		"current_activity": func(r json.RawMessage) error { return json.Unmarshal(r, &s.CurrentActivity) },
		"checkpoints":      func(r json.RawMessage) error { return json.Unmarshal(r, &s.Checkpoints) },
		"last_update":      func(r json.RawMessage) error { return json.Unmarshal(r, &s.LastUpdate) },
	}
	for key, val := range raw {
		if fn, ok := known[key]; ok {
			if err := fn(val); err != nil {
				return nil, err
			}
			continue
		}
		s.unknownFields[key] = val
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = CurrentSchemaVersion
	}
	if s.FailedItems == nil {
		s.FailedItems = map[string]FailedItem{}
	}
	return s, nil
}

// Save serializes the state via atomic write-temp-then-rename, re-adding
// any unknown fields preserved from the file it was loaded from.
func (s *State) Save(path string) error {
	merged := map[string]json.RawMessage{}
	for k, v := range s.unknownFields {
		merged[k] = v
	}

	type alias State
	body, err := json.Marshal((*alias)(s))
	if err != nil {
		return err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(body, &known); err != nil {
		return err
	}
	for k, v := range known {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return store.AtomicWrite(path, data, 0o644)
}

// BeginPass resets the totals and completion counters for a new pass
// over totalSkills topics and totalBooks books. Every pass re-counts each
// item it visits -- skip-matched books included -- so counters carried
// over from a resumed file would double-count. A previously completed
// state re-enters in_progress, since a new pass has new work to count.
func (s *State) BeginPass(totalSkills, totalBooks int) {
	s.TotalSkills = totalSkills
	s.TotalBooks = totalBooks
	s.CompletedSkills = 0
	s.CompletedBooks = 0
	if s.Status == StatusCompleted {
		s.Status = StatusInProgress
	}
	s.LastUpdate = time.Now()
}

// BeginItem transitions initialized -> in_progress on the first item.
func (s *State) BeginItem(activity string) {
	if s.Status == StatusInitialized {
		s.Status = StatusInProgress
	}
	s.CurrentActivity = activity
	s.LastUpdate = time.Now()
}

// Pause transitions in_progress -> paused, e.g. on SIGINT.
func (s *State) Pause() {
	if s.Status == StatusInProgress {
		s.Status = StatusPaused
	}
	s.LastUpdate = time.Now()
}

// Resume transitions paused -> in_progress.
func (s *State) Resume() {
	if s.Status == StatusPaused {
		s.Status = StatusInProgress
	}
	s.LastUpdate = time.Now()
}

// Fail transitions to failed from any state, for a fatal error.
func (s *State) Fail() {
	s.Status = StatusFailed
	s.LastUpdate = time.Now()
}

// CompleteIfDone transitions in_progress -> completed once every total is
// reached.
func (s *State) CompleteIfDone() {
	if s.Status == StatusInProgress && s.CompletedSkills >= s.TotalSkills && s.CompletedBooks >= s.TotalBooks {
		s.Status = StatusCompleted
	}
	s.LastUpdate = time.Now()
}

// RecordBookDone increments the completed-book counter.
func (s *State) RecordBookDone() {
	s.CompletedBooks++
	s.LastUpdate = time.Now()
}

// RecordSkillDone increments the completed-skill counter.
func (s *State) RecordSkillDone() {
	s.CompletedSkills++
	s.LastUpdate = time.Now()
}

// RecordFailure files a failed item by id.
func (s *State) RecordFailure(id, kind, message string) {
	s.FailedItems[id] = FailedItem{Kind: kind, Message: message}
	s.LastUpdate = time.Now()
}

// Checkpoint appends a checkpoint marker (e.g. a topic name) to the
// rolling checkpoint list.
func (s *State) Checkpoint(marker string) {
	s.Checkpoints = append(s.Checkpoints, marker)
}

// ETA reports the estimated remaining duration, or ok=false when the
// estimate is not yet meaningful (elapsed under 1s or speed near zero).
func (s *State) ETA(now time.Time) (remaining time.Duration, ok bool) {
	elapsed := now.Sub(s.StartTime)
	if elapsed < time.Second {
		return 0, false
	}
	completed := s.CompletedBooks
	total := s.TotalBooks
	if total <= completed {
		return 0, false
	}
	speed := float64(completed) / elapsed.Seconds()
	const epsilon = 1e-9
	if speed < epsilon {
		return 0, false
	}
	remainingItems := float64(total - completed)
	seconds := remainingItems / speed
	if math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// Summary renders the final human-readable report written at job
// completion or interruption: totals, failed items (id, kind, message),
// and elapsed time.
func (s *State) Summary(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session:    %s\n", s.SessionID)
	fmt.Fprintf(&b, "status:     %s\n", s.Status)
	fmt.Fprintf(&b, "elapsed:    %s\n", now.Sub(s.StartTime).Round(time.Second))
	fmt.Fprintf(&b, "skills:     %d/%d\n", s.CompletedSkills, s.TotalSkills)
	fmt.Fprintf(&b, "books:      %d/%d\n", s.CompletedBooks, s.TotalBooks)
	fmt.Fprintf(&b, "failed:     %d\n", len(s.FailedItems))

	if len(s.FailedItems) > 0 {
		ids := make([]string, 0, len(s.FailedItems))
		for id := range s.FailedItems {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("\nfailed items:\n")
		for _, id := range ids {
			item := s.FailedItems[id]
			fmt.Fprintf(&b, "  %s  [%s]  %s\n", id, item.Kind, item.Message)
		}
	}

	return b.String()
}
