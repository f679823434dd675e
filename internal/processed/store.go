// Package processed keeps the durable record of work units that finished the
// whole pipeline.
//
// The record is a plain text file with one unit ID per line. It only grows:
// an ID is written at most once and nothing removes it. Writes are synced to
// disk before the ID becomes visible through Contains, so a crash can lose a
// completion but never report one that was not persisted.
//
// A Store assumes it is the only writer of its file. Two monitors appending to
// the same file are not coordinated here.
package processed

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the in-memory view of a processed-state file.
type Store struct {
	path string

	mu    sync.RWMutex
	ids   map[string]struct{}
	order []string
}

// Load reads the file at path. A missing file yields an empty store; the file
// is created on the first Append. IDs are kept verbatim apart from a trailing
// carriage return, so a line matches exactly the directory name it was
// appended for. Blank lines are skipped.
func Load(path string) (*Store, error) {
	store := &Store{path: path, ids: make(map[string]struct{})}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("open processed log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(id) == "" {
			continue
		}
		store.add(id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read processed log: %w", err)
	}
	return store, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Contains reports whether id has been recorded.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Append durably records id exactly as given. Recording an ID that is already
// present is a no-op. When the write fails the store is left unchanged.
func (s *Store) Append(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("processed: empty unit id")
	}
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("processed: unit id %q contains a line break", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return nil
	}
	if err := s.persist(id); err != nil {
		return err
	}
	s.add(id)
	return nil
}

// IDs returns the recorded IDs in the order they were persisted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of recorded IDs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) persist(id string) (err error) {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create processed log directory: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open processed log: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close processed log: %w", closeErr)
		}
	}()

	line := id + "\n"
	terminated, err := endsWithNewline(file)
	if err != nil {
		return fmt.Errorf("inspect processed log: %w", err)
	}
	if !terminated {
		line = "\n" + line
	}
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("append processed log: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync processed log: %w", err)
	}
	return nil
}

// endsWithNewline reports whether file is empty or its last byte is '\n'. A
// final line left unterminated by an interrupted write or an outside editor
// must not be merged with the next ID.
func endsWithNewline(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}

func (s *Store) add(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}
