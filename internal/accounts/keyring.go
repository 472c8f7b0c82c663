package accounts

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const serviceName = "maildock"

// SecretStore persists account secrets outside the registry file.
type SecretStore interface {
	SavePassword(accountID, password string) error
	LoadPassword(accountID string) (string, error)
	SaveToken(accountID string, token *oauth2.Token) error
	LoadToken(accountID string) (*oauth2.Token, error)
	Delete(accountID string) error
}

// KeyringStore persists secrets in the OS keyring (macOS Keychain, Windows
// Credential Manager, or Linux Secret Service).
type KeyringStore struct{}

// NewKeyringStore returns a new KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// SavePassword stores an IMAP password under the account ID.
func (k *KeyringStore) SavePassword(accountID, password string) error {
	if err := keyring.Set(serviceName, accountID, password); err != nil {
		return fmt.Errorf("failed to save password to keyring: %w", err)
	}
	return nil
}

// LoadPassword retrieves the IMAP password for the given account ID.
func (k *KeyringStore) LoadPassword(accountID string) (string, error) {
	password, err := keyring.Get(serviceName, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to load password from keyring: %w", err)
	}
	return password, nil
}

// SaveToken stores the given OAuth2 token in the OS keyring under the
// account ID.
func (k *KeyringStore) SaveToken(accountID string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(serviceName, accountID+"/oauth", string(data)); err != nil {
		return fmt.Errorf("failed to save token to keyring: %w", err)
	}
	return nil
}

// LoadToken retrieves the OAuth2 token for the given account ID.
func (k *KeyringStore) LoadToken(accountID string) (*oauth2.Token, error) {
	data, err := keyring.Get(serviceName, accountID+"/oauth")
	if err != nil {
		return nil, fmt.Errorf("failed to load token from keyring: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Delete removes all secrets for the given account ID.
func (k *KeyringStore) Delete(accountID string) error {
	err := keyring.Delete(serviceName, accountID)
	if tokenErr := keyring.Delete(serviceName, accountID+"/oauth"); err == nil {
		err = tokenErr
	}
	if err != nil {
		return fmt.Errorf("failed to delete keyring entries: %w", err)
	}
	return nil
}
