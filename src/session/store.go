// Package session persists the signed-in credential between runs.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orchestra-mcp/railbook/src/types"
	"gopkg.in/yaml.v3"
)

// Store keeps the credential in memory and mirrors it to a YAML file.
// An empty path keeps it in memory only.
type Store struct {
	path string

	mu   sync.RWMutex
	cred types.Credential
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the credential file. A missing file is not an error.
func (s *Store) Load() (types.Credential, error) {
	if s.path == "" {
		return s.Current(), nil
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.Credential{}, nil
	}
	if err != nil {
		return types.Credential{}, fmt.Errorf("read credential: %w", err)
	}
	var c types.Credential
	if err := yaml.Unmarshal(b, &c); err != nil {
		return types.Credential{}, fmt.Errorf("parse credential %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
	return c, nil
}

// Save replaces the credential and writes it with owner-only permissions.
func (s *Store) Save(c types.Credential) error {
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credential: %w", err)
	}
	return nil
}

// Clear forgets the credential and removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.cred = types.Credential{}
	s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// Current returns the credential held in memory.
func (s *Store) Current() types.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Token returns the current bearer token.
func (s *Store) Token() string { return s.Current().Token }

// Valid reports whether token is worth sending. Tokens that parse as a
// JWT are checked against their exp claim; any other non-empty token is
// left for the backend to judge.
func Valid(token string, now time.Time) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.Before(exp.Time)
}
