package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"feedsync/internal/models"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Users map[string][]models.RecentSearch `yaml:"users"`
}

// FileStore keeps recent searches of every user in one YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the searches saved for userID. A missing file is an empty list.
func (s *FileStore) Load(_ context.Context, userID string) ([]models.RecentSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Users[userID], nil
}

// Save replaces the searches saved for userID.
func (s *FileStore) Save(_ context.Context, userID string, searches []models.RecentSearch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if len(searches) == 0 {
		delete(doc.Users, userID)
	} else {
		doc.Users[userID] = searches
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode recent searches: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create recent searches dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".recent-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write recent searches: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write recent searches: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace recent searches file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (fileDocument, error) {
	doc := fileDocument{Users: make(map[string][]models.RecentSearch)}

	// #nosec G304: path comes from configuration
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read recent searches: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode recent searches %s: %w", s.path, err)
	}
	if doc.Users == nil {
		doc.Users = make(map[string][]models.RecentSearch)
	}
	return doc, nil
}
