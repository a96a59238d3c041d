package discovery

import (
	"encoding/json"
	"path/filepath"

	"github.com/blampe/shelfpress/internal/naming"
	"github.com/blampe/shelfpress/internal/store"
)

// ManifestPath computes the stable per-topic manifest file path under dir.
func ManifestPath(dir, topic string) string {
	return filepath.Join(dir, naming.TopicFolder(topic)+".json")
}

// WriteManifest serializes m to its stable path atomically -- either the
// whole file exists with every book, or it doesn't exist at all.
func WriteManifest(dir string, m Manifest) (string, error) {
	path := ManifestPath(dir, m.TopicName)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	if err := store.AtomicWrite(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads a previously written topic manifest, or returns
// (nil, nil) if it doesn't exist.
func ReadManifest(path string) (*Manifest, error) {
	data, err := store.ReadOrNil(path)
	if err != nil || data == nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
