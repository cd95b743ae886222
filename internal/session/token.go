// Package session manages the persisted Kite access token and its freshness.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kite-webtrader/internal/apperrors"
)

// tokenRecord is the persisted token file content.
type tokenRecord struct {
	AccessToken string `json:"access_token"`
}

// Store persists the broker access token as a single JSON file. The file's
// modification time doubles as the token's freshness reference.
type Store struct {
	path string
}

// NewStore creates a token store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the token record, replacing any prior content. The write goes
// through a temp file and rename so readers never observe partial content.
func (s *Store) Save(accessToken string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}

	data, err := json.Marshal(tokenRecord{AccessToken: accessToken})
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// Load returns the stored token string. It returns apperrors.ErrNoToken when
// no record exists. Malformed content is a fatal read error.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}

	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decoding token file: %w", err)
	}
	return rec.AccessToken, nil
}

// Stat reports whether a token record exists and its last-write time.
func (s *Store) Stat() (mtime time.Time, exists bool, err error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("stat token file: %w", err)
	}
	return info.ModTime(), true, nil
}

// Valid reports whether the stored token is still usable right now.
func (s *Store) Valid() (bool, error) {
	mtime, exists, err := s.Stat()
	if err != nil {
		return false, err
	}
	return Fresh(time.Now(), mtime, exists), nil
}
