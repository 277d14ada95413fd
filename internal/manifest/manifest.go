package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tgvault/tgvault/internal/transport"
)

// Manifest is the durable record of one file's transfer. Messages always
// holds a strict prefix of the part sequence: parts are transported and
// recorded in increasing index order, never sparsely, so resume is always
// "continue from len(Messages)".
type Manifest struct {
	Filename      string              `json:"filename"`
	ChunkSize     int64               `json:"chunk_size"`
	TotalParts    int                 `json:"total_parts"`
	FileSizeBytes int64               `json:"file_size_bytes"`
	Messages      []transport.PartRef `json:"messages"`
}

// RecordedParts returns how many parts the remote side has acknowledged.
func (m Manifest) RecordedParts() int {
	return len(m.Messages)
}

// Complete reports whether every part has been transported and recorded.
func (m Manifest) Complete() bool {
	return m.TotalParts == len(m.Messages)
}

// Store persists manifests for one owner as a single JSON document keyed by
// filename. Saves are crash-safe: the document is written to a temporary
// sibling and atomically renamed over the target, so a reader always
// observes either the previous complete document or the new one.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore opens (or lazily creates) the manifest document for an owner.
func NewStore(dataDir, owner string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}
	return &Store{
		path: filepath.Join(dataDir, fmt.Sprintf("user_%s_files.json", owner)),
	}, nil
}

// Load returns the manifest recorded for filename, if any.
func (s *Store) Load(filename string) (Manifest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.read()
	if err != nil {
		return Manifest{}, false, err
	}
	m, ok := db[filename]
	return m, ok, nil
}

// Save records the manifest for filename. The document is re-read before
// mutating so a concurrently written entry for another file is not
// clobbered.
func (s *Store) Save(filename string, m Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.read()
	if err != nil {
		return err
	}
	db[filename] = m
	return s.write(db)
}

// Delete removes the manifest for filename.
func (s *Store) Delete(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.read()
	if err != nil {
		return err
	}
	delete(db, filename)
	return s.write(db)
}

// List returns all recorded manifests sorted by filename, for presenting
// stored files to the user.
func (s *Store) List() ([]Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.read()
	if err != nil {
		return nil, err
	}

	manifests := make([]Manifest, 0, len(db))
	for _, m := range db {
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Filename < manifests[j].Filename
	})
	return manifests, nil
}

func (s *Store) read() (map[string]Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest file: %v", err)
	}

	db := map[string]Manifest{}
	if err := json.Unmarshal(data, &db); err != nil {
		// A torn document cannot happen under the atomic-replace protocol;
		// tolerate one anyway rather than wedging every future transfer.
		return map[string]Manifest{}, nil
	}
	return db, nil
}

func (s *Store) write(db map[string]Manifest) error {
	data, err := json.MarshalIndent(db, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifests: %v", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp manifest file: %v", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace manifest file: %v", err)
	}
	return nil
}
