// Package store: the per-room document cache and its on-disk text files.
package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Document is the authoritative copy of a room's text. Version counts
// accepted edits since the document was loaded or created; it starts at 1
// and never decreases while the process runs.
type Document struct {
	Content string
	Version int
}

// DocumentStore caches one Document per room key and persists each room to
// its own text file under dir. Rooms stay resident for the process lifetime;
// there is no eviction.
type DocumentStore struct {
	mu   sync.Mutex
	dir  string
	docs map[string]*Document
}

// NewDocumentStore creates a store rooted at dir, creating it if needed.
func NewDocumentStore(dir string) (*DocumentStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &DocumentStore{dir: dir, docs: make(map[string]*Document)}, nil
}

// LoadOrCreate returns the room's current content and version. The resident
// copy wins; otherwise the room's file is read from disk, and if no file
// exists a templated greeting is synthesized at version 1. Idempotent.
func (s *DocumentStore) LoadOrCreate(room string) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.docs[room]; ok {
		return doc.Content, doc.Version, nil
	}

	content := defaultContent(room)
	data, err := os.ReadFile(s.pathFor(room))
	switch {
	case err == nil:
		content = string(data)
	case errors.Is(err, os.ErrNotExist):
		// Fresh room; the file appears on the first edit.
	default:
		return "", 0, fmt.Errorf("reading document for room %q: %w", room, err)
	}

	doc := &Document{Content: content, Version: 1}
	s.docs[room] = doc
	return doc.Content, doc.Version, nil
}

// ApplyEdit replaces the room's content wholesale and increments its
// version. The new content is persisted before the in-memory copy is
// touched, so a storage failure leaves content and version unchanged.
func (s *DocumentStore) ApplyEdit(room, content string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[room]
	if !ok {
		// Edits only arrive from sessions that loaded the room at join,
		// but a restart-free guarantee costs nothing here.
		doc = &Document{Content: defaultContent(room), Version: 1}
		s.docs[room] = doc
	}

	if err := writeFileAtomic(s.pathFor(room), []byte(content)); err != nil {
		return 0, fmt.Errorf("persisting document for room %q: %w", room, err)
	}

	doc.Content = content
	doc.Version++
	return doc.Version, nil
}

// pathFor escapes the room key so arbitrary room names map to safe file
// names inside the data directory.
func (s *DocumentStore) pathFor(room string) string {
	return filepath.Join(s.dir, url.PathEscape(room)+".txt")
}

func defaultContent(room string) string {
	return "# " + room + "\n\nStart writing..."
}
