package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"trane/types"
)

// Session holds the authenticated token pair for one user. It is passed
// explicitly to whatever needs it; there is no package-level auth state.
type Session struct {
	path string

	mu      sync.Mutex
	access  string
	refresh string
}

// NewSession creates a session persisting its tokens at path.
func NewSession(path string) *Session {
	return &Session{path: path}
}

// Init reads previously persisted tokens. A missing file simply leaves
// the session unauthenticated.
func (s *Session) Init() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var pair types.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("parse session file: %w", err)
	}

	s.mu.Lock()
	s.access = pair.Access
	s.refresh = pair.Refresh
	s.mu.Unlock()
	return nil
}

// Authenticated reports whether the session holds an access token.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access != ""
}

// Tokens returns the current token pair.
func (s *Session) Tokens() types.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.TokenPair{Access: s.access, Refresh: s.refresh}
}

// SetTokens stores and persists a new token pair.
func (s *Session) SetTokens(pair types.TokenPair) error {
	s.mu.Lock()
	s.access = pair.Access
	s.refresh = pair.Refresh
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Teardown clears the tokens from memory and disk.
func (s *Session) Teardown() error {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
