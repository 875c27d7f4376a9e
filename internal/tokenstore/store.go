// Package tokenstore persists per-account OAuth credentials in a JSON file.
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the OAuth credential bundle for one account. Once obtained, the
// refresh token is carried forward across every refresh, even when the token
// endpoint omits it from a refresh response.
type Record struct {
	AccessToken    string    `json:"access_token"`
	ExpirationTime time.Time `json:"expiration_time"`
	ExpiresIn      int64     `json:"expires_in,omitempty"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
}

// Complete reports whether the record carries everything a later run needs
// to refresh without re-running the consent flow.
func (r Record) Complete() bool {
	return r.RefreshToken != "" && !r.ExpirationTime.IsZero()
}

// Expired reports whether the access token has expired at the given time.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpirationTime.After(now)
}

// Store maps account addresses to their credential records.
type Store map[string]Record

// DefaultPath returns the canonical token store location.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(dir, "gmail-archiver", "oauth.json"), nil
}

// Load reads the store at path. A missing or unparsable file yields an
// empty store, not an error.
func Load(path string) Store {
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}
	}
	var s Store
	if err := json.Unmarshal(data, &s); err != nil || s == nil {
		return Store{}
	}
	return s
}

// Save writes the store to path with sorted keys, two-space indentation and
// a trailing newline, creating parent directories as needed.
func (s Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token store directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token store: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token store: %w", err)
	}
	return nil
}
