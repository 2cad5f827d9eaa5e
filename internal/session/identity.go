package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Identity is the authenticated local user. The reconciler needs UserID to
// tell self-authored message events apart from inbound ones; Token
// authenticates REST and push-channel calls.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
}

// LoadIdentity reads the stored credentials for a profile.
// Returns os.ErrNotExist (wrapped) when the profile has never logged in.
func LoadIdentity(profile string) (*Identity, error) {
	data, err := os.ReadFile(CredentialsPath(profile))
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if id.UserID == "" || id.Token == "" {
		return nil, fmt.Errorf("credentials for profile %q are incomplete", profile)
	}
	return &id, nil
}

// SaveIdentity persists credentials for a profile with owner-only permissions.
func SaveIdentity(profile string, id *Identity) error {
	path := CredentialsPath(profile)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ClearIdentity removes stored credentials (logout).
func ClearIdentity(profile string) error {
	err := os.Remove(CredentialsPath(profile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
