// Package auth manages the OAuth2 credential this proxy uses to call the
// Code Assist API, grounded on the teacher's internal/auth/gemini package
// (GeminiTokenStorage) and internal/auth (GetAuthenticatedClient), minus the
// teacher's interactive browser login ceremony: this proxy is a local
// service that expects a credential file to already exist (see
// SPEC_FULL.md's "Dropped teacher modules" for the reasoning).
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// TokenStorage is the on-disk shape of a Code Assist OAuth2 credential,
// unchanged from the teacher's GeminiTokenStorage so existing credential
// files produced by the teacher (or its upstream CLI) load without
// modification.
type TokenStorage struct {
	Token     any    `json:"token"`
	ProjectID string `json:"project_id"`
	Email     string `json:"email"`
	Auto      bool   `json:"auto"`
	Checked   bool   `json:"checked"`
	Type      string `json:"type"`
}

// LoadTokenFromFile reads and parses a credential file.
func LoadTokenFromFile(path string) (*TokenStorage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	var ts TokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return &ts, nil
}

// SaveTokenToFile serializes ts to path, creating parent directories as
// needed.
func (ts *TokenStorage) SaveTokenToFile(path string) error {
	ts.Type = "gemini"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil {
			log.Errorf("failed to close credential file: %v", errClose)
		}
	}()

	if err = json.NewEncoder(f).Encode(ts); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}
