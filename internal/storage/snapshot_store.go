package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/portfolio-reconciler/internal/models"
)

// SnapshotStore persists the latest portfolio snapshot as a JSON file. Writes
// are atomic: the new snapshot lands in a temp file that is renamed over the
// current one, so a crash mid-write never leaves a truncated snapshot. The
// previous snapshot is archived alongside for diffing and manual inspection.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore creates a snapshot store rooted at the given file path
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &SnapshotStore{path: path}, nil
}

// Load reads the current snapshot. Returns nil when no snapshot exists yet,
// which callers treat as a first run.
func (s *SnapshotStore) Load() (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return &snapshot, nil
}

// Save atomically replaces the current snapshot, archiving the prior one
// under the .prev.json suffix first
func (s *SnapshotStore) Save(snapshot *models.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Archive the current snapshot before replacing it
	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.prevPath()); err != nil {
			return fmt.Errorf("failed to archive previous snapshot: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// LoadPrevious reads the archived prior snapshot, nil when none exists
func (s *SnapshotStore) LoadPrevious() (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.prevPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read previous snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse previous snapshot: %w", err)
	}

	return &snapshot, nil
}

// prevPath derives the archive path: snapshot.json -> snapshot.prev.json
func (s *SnapshotStore) prevPath() string {
	ext := filepath.Ext(s.path)
	return strings.TrimSuffix(s.path, ext) + ".prev" + ext
}

// copyFile copies src to dst, replacing dst
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src) // #nosec G304 - paths are store-owned
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
