package lastfm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/emm218/scritches/models"
)

// SessionStore persists the Last.fm credential to a single JSON file. The
// file is written with owner-only permissions via a temp file and rename, so
// a crash mid-write can never leave a truncated credential behind.
type SessionStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	cached *models.Credential
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Get returns the stored credential, or nil when none exists.
func (s *SessionStore) Get() (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", s.path, err)
	}

	s.cached = &cred
	s.loaded = true
	return s.cached, nil
}

// Set durably replaces the stored credential.
func (s *SessionStore) Set(cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.cached = &cred
	s.loaded = true
	return nil
}

// Clear removes the stored credential, for example after the user revoked
// the session on the Last.fm side.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.cached = nil
	s.loaded = true
	return nil
}
