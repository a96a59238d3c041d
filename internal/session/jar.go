package session

import (
	"encoding/json"
	"sync"

	"github.com/blampe/shelfpress/internal/store"
)

// Jar is a mutex-guarded cookie jar: a simple name->value map, with no
// domain/path/expiry attributes, since the sliding-token scheme only ever
// cares about values.
type Jar struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewJar creates an empty jar.
func NewJar() *Jar {
	return &Jar{values: map[string]string{}}
}

// LoadJar reads a cookie file: a JSON object mapping cookie name to value.
func LoadJar(path string) (*Jar, error) {
	data, err := store.ReadOrNil(path)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	}
	return &Jar{values: values}, nil
}

// Snapshot returns a copy of the current name/value pairs.
func (j *Jar) Snapshot() map[string]string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make(map[string]string, len(j.values))
	for k, v := range j.values {
		out[k] = v
	}
	return out
}

// Merge updates the jar with the given name/value pairs under the write
// lock. Callers must merge every Set-Cookie header before the next
// request is issued, since a rotated token invalidates the previous one.
func (j *Jar) Merge(pairs map[string]string) {
	if len(pairs) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for k, v := range pairs {
		j.values[k] = v
	}
}

// Get returns a single cookie's current value.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.values[name]
	return v, ok
}

// Persist serializes the jar to path via atomic write-temp-then-rename.
func (j *Jar) Persist(path string) error {
	data, err := json.MarshalIndent(j.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return store.AtomicWrite(path, data, 0o600)
}
