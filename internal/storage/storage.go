package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

// ErrNoToken is returned by Load when nobody has signed in yet
var ErrNoToken = errors.New("no stored session")

// StoredSession is the on-disk form of a signed-in session
type StoredSession struct {
	AccessToken string          `yaml:"access_token"`
	TokenType   string          `yaml:"token_type"`
	ExpiresIn   int             `yaml:"expires_in"`
	IssuedAt    time.Time       `yaml:"issued_at"`
	Identity    models.Identity `yaml:"identity"`
}

// Expired reports whether the token's advertised lifetime has passed.
// A token without a lifetime never expires client-side; the server decides.
func (s StoredSession) Expired(now time.Time) bool {
	if s.ExpiresIn <= 0 || s.IssuedAt.IsZero() {
		return false
	}
	return now.After(s.IssuedAt.Add(time.Duration(s.ExpiresIn) * time.Second))
}

// TokenStore persists the access token between CLI invocations
type TokenStore struct {
	path string
	mu   sync.RWMutex
}

// New returns a store backed by path
func New(path string) *TokenStore {
	return &TokenStore{path: path}
}

// DefaultPath is ~/.config/lending/session.yaml
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "lending", "session.yaml")
}

// Path returns the backing file
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the stored session
func (s *TokenStore) Load() (StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StoredSession{}, ErrNoToken
		}
		return StoredSession{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var stored StoredSession
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return StoredSession{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	if stored.AccessToken == "" {
		return StoredSession{}, ErrNoToken
	}
	return stored, nil
}

// Save writes the session with owner-only permissions
func (s *TokenStore) Save(stored StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := yaml.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Delete removes the stored session. Deleting a missing file is not an error.
func (s *TokenStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
