// Package srt appends transcript entries to a SubRip file.
//
// Block numbers continue across restarts: the last used index is kept in a
// sibling file with an .idx suffix. A missing or unreadable counter restarts
// numbering at 1.
package srt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/daymind/internal/transcript"
)

// IndexSuffix is appended to the transcript path to name the counter file.
const IndexSuffix = ".idx"

// Store writes SRT blocks to a single file. It is safe for concurrent use
// within one process.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ transcript.Store = (*Store)(nil)

// Open returns a Store appending to path. Parent directories are created.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("srt: open: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("srt: open: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the transcript file path.
func (s *Store) Path() string { return s.path }

// Append writes one block per entry of rec.
func (s *Store) Append(_ context.Context, rec transcript.Record) error {
	entries := transcript.Entries(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	first, err := s.reserve(len(entries))
	if err != nil {
		return fmt.Errorf("srt: append %s: %w", rec.ChunkID, err)
	}

	var sb strings.Builder
	for i, e := range entries {
		writeBlock(&sb, first+i, e)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("srt: append %s: %w", rec.ChunkID, err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		return fmt.Errorf("srt: append %s: %w", rec.ChunkID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("srt: append %s: %w", rec.ChunkID, err)
	}
	return nil
}

// Close is a no-op; every Append opens and closes the file.
func (s *Store) Close() error { return nil }

// reserve returns the first of count consecutive block numbers and records
// the last one in the counter file.
func (s *Store) reserve(count int) (int, error) {
	idxPath := s.path + IndexSuffix
	current := 0
	if raw, err := os.ReadFile(idxPath); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && n > 0 {
			current = n
		}
	}
	if err := os.WriteFile(idxPath, []byte(strconv.Itoa(current+count)), 0o644); err != nil {
		return 0, err
	}
	return current + 1, nil
}

func writeBlock(sb *strings.Builder, index int, e transcript.Entry) {
	fmt.Fprintf(sb, "%d\n%s --> %s\n%s: %s\n\n",
		index,
		transcript.FormatTimestamp(e.Start),
		transcript.FormatTimestamp(e.End),
		e.ChunkID,
		e.Text,
	)
}
