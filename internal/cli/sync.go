package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/config"
	"github.com/marek/maildock/internal/imap"
	"github.com/marek/maildock/internal/notify"
	"github.com/marek/maildock/internal/store/sqlite"
	"github.com/marek/maildock/internal/sync"
)

func newEngine(cfg *config.Config, db *sqlite.DB, reg *accounts.Registry, log *logrus.Logger) *sync.Engine {
	return sync.New(db, reg, imap.Dial, notify.NewBus(), sync.Options{
		BatchSize: cfg.BatchSize(),
		Interval:  cfg.Interval(),
		Backoff:   cfg.Backoff(),
		Logger:    log,
	})
}

func newSyncCmd() *cobra.Command {
	var accountFlag string
	var folderFlag string
	var fullFlag bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-shot sync pass",
		Long:  "Reconcile the local cache with the server, for all accounts or a single account or folder.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			reg := openRegistry()
			eng := newEngine(cfg, db, reg, newLogger(cfg))
			ctx := cmd.Context()

			if fullFlag && folderFlag == "" {
				return fmt.Errorf("--full requires --folder")
			}

			if folderFlag != "" {
				acct, err := resolveAccount(reg, accountFlag)
				if err != nil {
					return err
				}
				folder, err := db.GetFolderByPath(ctx, acct.ID, folderFlag)
				if err != nil {
					return fmt.Errorf("folder %s is not cached yet; run a full sync first: %w", folderFlag, err)
				}
				if fullFlag {
					err = eng.ForceFullResync(ctx, acct.ID, folder.ID)
				} else {
					err = eng.RefreshFolder(ctx, acct.ID, folder.ID)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Synced %s/%s\n", acct.Email, folderFlag)
				return nil
			}

			if accountFlag != "" {
				acct, err := resolveAccount(reg, accountFlag)
				if err != nil {
					return err
				}
				if err := eng.TriggerSyncForAccount(ctx, acct.ID); err != nil {
					return err
				}
				fmt.Printf("Synced %s\n", acct.Email)
				return nil
			}

			eng.SyncAll(ctx)
			fmt.Println("Sync complete.")
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account ID or email (defaults to all accounts)")
	cmd.Flags().StringVar(&folderFlag, "folder", "", "sync a single folder by path")
	cmd.Flags().BoolVar(&fullFlag, "full", false, "drop the folder's cache and refetch everything (requires --folder)")
	return cmd
}
