// Package checkpoint provides resume capability for interrupted extractions.
// Extraction runs may be cut short by timeouts or operator aborts; the store
// remembers which records were already pulled so a rerun picks up where the
// previous one stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// completeSentinel marks an extractor's checkpoint set as finished.
const completeSentinel = "_complete"

// Record is one checkpointed unit of extraction progress.
type Record struct {
	ExtractorID string                 `json:"extractor_id"`
	Key         string                 `json:"key"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	SavedAt     time.Time              `json:"saved_at"`
}

// Backend persists checkpoint records. Implementations store them locally,
// in Redis, or in S3.
type Backend interface {
	// Put saves one record under its extractor and key.
	Put(ctx context.Context, rec *Record) error

	// Get retrieves a record, or os.ErrNotExist.
	Get(ctx context.Context, extractorID, key string) (*Record, error)

	// Keys lists the saved keys for an extractor, sorted.
	Keys(ctx context.Context, extractorID string) ([]string, error)

	// MarkComplete writes the completion sentinel for an extractor.
	MarkComplete(ctx context.Context, extractorID string) error

	// IsComplete reports whether the extractor's run finished.
	IsComplete(ctx context.Context, extractorID string) (bool, error)

	// Clear removes every record and the sentinel for an extractor.
	Clear(ctx context.Context, extractorID string) error

	// Name identifies the backend for logging.
	Name() string
}

// Store is the extraction-facing view over a backend. It caches the key set
// per extractor so the hot path (HasKey during a resume scan) avoids a
// backend round trip per record.
type Store struct {
	backend Backend

	mu   sync.RWMutex
	seen map[string]map[string]bool
}

// NewStore wraps a backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		seen:    make(map[string]map[string]bool),
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Save checkpoints one extracted record.
func (s *Store) Save(ctx context.Context, extractorID, key string, payload map[string]interface{}) error {
	rec := &Record{
		ExtractorID: extractorID,
		Key:         key,
		Payload:     payload,
		SavedAt:     time.Now().UTC(),
	}
	if err := s.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save checkpoint %s/%s: %w", extractorID, key, err)
	}

	s.mu.Lock()
	if s.seen[extractorID] == nil {
		s.seen[extractorID] = make(map[string]bool)
	}
	s.seen[extractorID][key] = true
	s.mu.Unlock()
	return nil
}

// HasKey reports whether a record was already checkpointed. The first call
// per extractor hydrates the cache from the backend.
func (s *Store) HasKey(ctx context.Context, extractorID, key string) (bool, error) {
	s.mu.RLock()
	keys, ok := s.seen[extractorID]
	s.mu.RUnlock()

	if !ok {
		loaded, err := s.backend.Keys(ctx, extractorID)
		if err != nil {
			return false, err
		}
		keys = make(map[string]bool, len(loaded))
		for _, k := range loaded {
			keys[k] = true
		}
		s.mu.Lock()
		s.seen[extractorID] = keys
		s.mu.Unlock()
	}

	return keys[key], nil
}

// MarkComplete finalizes an extractor's run.
func (s *Store) MarkComplete(ctx context.Context, extractorID string) error {
	return s.backend.MarkComplete(ctx, extractorID)
}

// IsComplete reports whether a previous run finished.
func (s *Store) IsComplete(ctx context.Context, extractorID string) (bool, error) {
	return s.backend.IsComplete(ctx, extractorID)
}

// Clear drops all checkpoint state for an extractor.
func (s *Store) Clear(ctx context.Context, extractorID string) error {
	s.mu.Lock()
	delete(s.seen, extractorID)
	s.mu.Unlock()
	return s.backend.Clear(ctx, extractorID)
}

// --- File Backend ---

// FileBackend stores checkpoints on the local filesystem, one directory per
// extractor and one JSON file per key. Completion is a sentinel file so a
// crashed run can never look complete.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileBackend creates a file backend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) extractorDir(extractorID string) string {
	return filepath.Join(b.dir, sanitizeKey(extractorID))
}

func (b *FileBackend) recordPath(extractorID, key string) string {
	return filepath.Join(b.extractorDir(extractorID), sanitizeKey(key)+".json")
}

// Put writes the record atomically (temp file then rename).
func (b *FileBackend) Put(ctx context.Context, rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := b.extractorDir(rec.ExtractorID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	path := b.recordPath(rec.ExtractorID, rec.Key)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Get reads a single record.
func (b *FileBackend) Get(ctx context.Context, extractorID, key string) (*Record, error) {
	data, err := os.ReadFile(b.recordPath(extractorID, key))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Keys lists checkpointed keys for the extractor, sorted.
func (b *FileBackend) Keys(ctx context.Context, extractorID string) ([]string, error) {
	entries, err := os.ReadDir(b.extractorDir(extractorID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != ".json" || strings.HasSuffix(name, ".tmp") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if key == completeSentinel {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// MarkComplete writes the sentinel file.
func (b *FileBackend) MarkComplete(ctx context.Context, extractorID string) error {
	rec := &Record{
		ExtractorID: extractorID,
		Key:         completeSentinel,
		SavedAt:     time.Now().UTC(),
	}
	return b.Put(ctx, rec)
}

// IsComplete checks for the sentinel file.
func (b *FileBackend) IsComplete(ctx context.Context, extractorID string) (bool, error) {
	_, err := os.Stat(b.recordPath(extractorID, completeSentinel))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear removes the extractor's checkpoint directory.
func (b *FileBackend) Clear(ctx context.Context, extractorID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return os.RemoveAll(b.extractorDir(extractorID))
}

// Name returns "file".
func (b *FileBackend) Name() string {
	return "file"
}

// sanitizeKey removes characters that may cause issues in file names and
// backend keys.
func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
