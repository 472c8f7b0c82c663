// Package cli wires the commands: account management, one-shot syncs,
// cache queries and the long-running sync daemon.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/config"
	"github.com/marek/maildock/internal/store/sqlite"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "maildock",
		Short:   "Mailbox sync engine",
		Long:    "Mirrors remote mailboxes into a local cache and keeps it fresh.",
		Version: version,
	}
	root.SetVersionTemplate(fmt.Sprintf("maildock %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.AddCommand(newAccountCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newFoldersCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newRunCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore creates the data directory and opens the cache database.
func openStore(cfg *config.Config) (*sqlite.DB, error) {
	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func openRegistry() *accounts.Registry {
	return accounts.NewRegistry(config.DataDir(), accounts.NewKeyringStore())
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// resolveAccount matches the --account flag against account ids and email
// addresses, defaulting to the sole configured account.
func resolveAccount(reg *accounts.Registry, flag string) (*accounts.Config, error) {
	accts, err := reg.List()
	if err != nil {
		return nil, err
	}
	if flag == "" {
		if len(accts) == 0 {
			return nil, fmt.Errorf("no accounts configured; run 'maildock account add' first")
		}
		if len(accts) > 1 {
			return nil, fmt.Errorf("multiple accounts configured; pass --account")
		}
		return &accts[0], nil
	}
	for i := range accts {
		if accts[i].ID == flag || accts[i].Email == flag {
			return &accts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", flag)
}
