package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Supported account providers. The set is closed: code dispatching on the
// provider tag switches over these constants.
const (
	ProviderGoogle = "google"
	ProviderIMAP   = "imap"
)

// Encryption selects the transport security for the IMAP connection.
type Encryption string

const (
	EncryptionTLS      Encryption = "tls"
	EncryptionStartTLS Encryption = "starttls"
	EncryptionNone     Encryption = "none"
)

// ErrNotFound is returned when an account id is not in the registry,
// e.g. because the account was removed while a sync was in flight.
var ErrNotFound = errors.New("account not found")

// Config describes one mail account. Secrets (Password, the OAuth token)
// are never written to the registry file; they live in the OS keyring and
// are resolved on Get.
type Config struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	Host        string     `json:"host,omitempty"`
	Port        int        `json:"port,omitempty"`
	Encryption  Encryption `json:"encryption,omitempty"`
	Username    string     `json:"username,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Password string `json:"-"`
	// AccessToken is the current OAuth2 access token for google accounts.
	AccessToken string `json:"-"`
}

// Endpoint returns the IMAP host and port for the account. Google accounts
// always connect to Gmail's IMAP endpoint.
func (c *Config) Endpoint() (string, int) {
	if c.Provider == ProviderGoogle {
		return "imap.gmail.com", 993
	}
	return c.Host, c.Port
}

// LoginUsername returns the username to authenticate with, defaulting to
// the account email.
func (c *Config) LoginUsername() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Email
}

// StripSecrets returns a copy with all secret material cleared, safe to
// log or hand to a UI layer.
func (c Config) StripSecrets() Config {
	c.Password = ""
	c.AccessToken = ""
	return c
}

// Validate checks the fields required for the account's provider.
func (c *Config) Validate() error {
	if c.Email == "" {
		return errors.New("account email is required")
	}
	switch c.Provider {
	case ProviderGoogle:
		return nil
	case ProviderIMAP:
		if c.Host == "" || c.Port == 0 {
			return errors.New("imap accounts require host and port")
		}
		switch c.Encryption {
		case EncryptionTLS, EncryptionStartTLS, EncryptionNone:
			return nil
		default:
			return fmt.Errorf("unknown encryption mode %q", c.Encryption)
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
}

type registryFile struct {
	Accounts []Config `json:"accounts"`
}

// Registry persists account configs in a JSON file and their secrets in
// the OS keyring. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	path    string
	secrets SecretStore
}

// NewRegistry returns a Registry backed by accounts.json in dataDir.
func NewRegistry(dataDir string, secrets SecretStore) *Registry {
	return &Registry{
		path:    filepath.Join(dataDir, "accounts.json"),
		secrets: secrets,
	}
}

func (r *Registry) load() (*registryFile, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &registryFile{}, nil
		}
		return nil, fmt.Errorf("failed to read account registry: %w", err)
	}
	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse account registry: %w", err)
	}
	return &reg, nil
}

func (r *Registry) save(reg *registryFile) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal account registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write account registry: %w", err)
	}
	return nil
}

// List returns all accounts without secret material.
func (r *Registry) List() ([]Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	return reg.Accounts, nil
}

// Get returns the account with the given id, with secrets resolved from
// the keyring. Returns ErrNotFound if the account was removed.
func (r *Registry) Get(id string) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range reg.Accounts {
		if reg.Accounts[i].ID != id {
			continue
		}
		acct := reg.Accounts[i]
		if err := r.resolveSecrets(&acct); err != nil {
			return nil, err
		}
		return &acct, nil
	}
	return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
}

func (r *Registry) resolveSecrets(acct *Config) error {
	switch acct.Provider {
	case ProviderGoogle:
		token, err := r.secrets.LoadToken(acct.ID)
		if err != nil {
			return fmt.Errorf("failed to load token for %s: %w", acct.Email, err)
		}
		acct.AccessToken = token.AccessToken
	case ProviderIMAP:
		password, err := r.secrets.LoadPassword(acct.ID)
		if err != nil {
			return fmt.Errorf("failed to load password for %s: %w", acct.Email, err)
		}
		acct.Password = password
	}
	return nil
}

// Add validates the account, stores its secrets in the keyring and appends
// it to the registry file. A missing ID is filled with a fresh UUID.
func (r *Registry) Add(acct Config) (*Config, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, existing := range reg.Accounts {
		if existing.ID == acct.ID {
			return nil, fmt.Errorf("account %s already exists", acct.ID)
		}
	}

	if acct.Provider == ProviderIMAP && acct.Password != "" {
		if err := r.secrets.SavePassword(acct.ID, acct.Password); err != nil {
			return nil, err
		}
	}

	stored := acct.StripSecrets()
	reg.Accounts = append(reg.Accounts, stored)
	if err := r.save(reg); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Remove deletes the account from the registry and drops its secrets.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return err
	}
	kept := reg.Accounts[:0]
	found := false
	for _, acct := range reg.Accounts {
		if acct.ID == id {
			found = true
			continue
		}
		kept = append(kept, acct)
	}
	if !found {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	reg.Accounts = kept
	if err := r.save(reg); err != nil {
		return err
	}
	// Keyring cleanup is best-effort: the registry entry is already gone.
	_ = r.secrets.Delete(id)
	return nil
}
