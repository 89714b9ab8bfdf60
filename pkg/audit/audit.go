// Package audit records an append-only trail of tier-2+ executions and
// approval events. Entries are never mutated; the file store writes one JSON
// line per entry.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Event kinds.
const (
	KindExecution = "execution"
	KindApproval  = "approval"
	KindAccess    = "access"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
	OutcomeDryRun  = "dry_run"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Kind      string                 `json:"kind"`
	Actor     string                 `json:"actor"`
	Resource  string                 `json:"resource"`
	Action    string                 `json:"action"`
	Outcome   string                 `json:"outcome"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Store persists audit entries. Writes are single-writer per process;
// implementations serialize behind a mutex.
type Store interface {
	// Append writes one entry. The entry's ID and timestamp are assigned
	// by the store.
	Append(entry Entry) (*Entry, error)

	// Entries returns all recorded entries in append order.
	Entries() ([]Entry, error)
}

// MemoryStore keeps entries in memory. Useful for assessment runs and
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records one entry.
func (s *MemoryStore) Append(entry Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()
	s.entries = append(s.entries, entry)
	return &entry, nil
}

// Entries returns a copy of the recorded entries.
func (s *MemoryStore) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// FileStore appends entries to a JSON-lines file, one entry per line, with
// a sync after every write.
type FileStore struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileStore opens (or creates) the audit file in append mode.
func NewFileStore(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeAuditWrite, "failed to open audit log %s", path)
	}
	return &FileStore{file: file, path: path}, nil
}

// Append writes one entry as a JSON line and fsyncs.
func (s *FileStore) Append(entry Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAuditWrite, "failed to marshal audit entry")
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return nil, errors.Wrap(err, errors.CodeAuditWrite, "failed to append audit entry")
	}
	if err := s.file.Sync(); err != nil {
		return nil, errors.Wrap(err, errors.CodeAuditWrite, "failed to sync audit log")
	}
	return &entry, nil
}

// Entries reads the full audit file back.
func (s *FileStore) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeAuditWrite, "failed to read audit log %s", s.path)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errors.Wrap(err, errors.CodeAuditWrite, "corrupt audit entry")
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeAuditWrite, "failed to scan audit log")
	}
	return entries, nil
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
