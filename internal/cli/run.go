package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long:  "Run the background sync daemon: an initial sweep, periodic sweeps, and a live watch connection per account.",
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

			log := newLogger(cfg)
			eng := newEngine(cfg, db, openRegistry(), log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.WithField("interval", cfg.Interval()).Info("sync daemon starting")
			if err := eng.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			log.Info("shutting down")
			eng.Close()
			return nil
		},
	}
}
