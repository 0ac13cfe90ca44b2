package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/portfolio-reconciler/internal/models"
)

// LedgerStore is the append-only reconciliation ledger: one JSON entry per
// line. Entries are never rewritten or deleted; a mutex serializes appends so
// concurrent writers cannot interleave partial lines.
type LedgerStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewLedgerStore opens (or creates) the ledger file for appending
func NewLedgerStore(path string) (*LedgerStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 - path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &LedgerStore{path: path, file: file}, nil
}

// Append writes one entry as a single JSON line
func (s *LedgerStore) Append(entry *models.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("ledger entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// AppendAll writes a batch of entries under one lock acquisition
func (s *LedgerStore) AppendAll(entries []*models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry: %w", err)
		}
		if _, err := s.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}

	return nil
}

// Tail returns the most recent n entries, oldest first. Unparseable lines are
// skipped so a damaged line never blocks reading the rest of the ledger.
func (s *LedgerStore) Tail(n int) ([]*models.LedgerEntry, error) {
	if n <= 0 {
		n = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path) // #nosec G304 - path comes from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	var entries []*models.LedgerEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry models.LedgerEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}

		entries = append(entries, &entry)
		if len(entries) > n {
			entries = entries[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return entries, nil
}

// Sync flushes pending appends to disk
func (s *LedgerStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

// Close closes the underlying file
func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
