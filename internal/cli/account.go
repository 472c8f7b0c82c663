package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/marek/maildock/internal/accounts"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage mail accounts",
	}
	cmd.AddCommand(newAccountAddCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountRemoveCmd())
	return cmd
}

func newAccountAddCmd() *cobra.Command {
	var (
		provider    string
		email       string
		displayName string
		host        string
		port        int
		encryption  string
		username    string
		password    string
		accessToken string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a mail account",
		Long:  "Add a mail account. Secrets are stored in the OS keyring, never in the registry file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()

			if provider == accounts.ProviderIMAP && password == "" {
				fmt.Print("Password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			acct, err := reg.Add(accounts.Config{
				Provider:    provider,
				Email:       email,
				DisplayName: displayName,
				Host:        host,
				Port:        port,
				Encryption:  accounts.Encryption(encryption),
				Username:    username,
				Password:    password,
			})
			if err != nil {
				return fmt.Errorf("failed to add account: %w", err)
			}

			if provider == accounts.ProviderGoogle {
				if accessToken == "" {
					return fmt.Errorf("google accounts require --token")
				}
				secrets := accounts.NewKeyringStore()
				if err := secrets.SaveToken(acct.ID, &oauth2.Token{AccessToken: accessToken}); err != nil {
					return fmt.Errorf("failed to store token: %w", err)
				}
			}

			fmt.Printf("Account added: %s (%s)\n", acct.Email, acct.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", accounts.ProviderIMAP, "account provider (imap, google)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&displayName, "name", "", "display name")
	cmd.Flags().StringVar(&host, "host", "", "IMAP server host")
	cmd.Flags().IntVar(&port, "port", 993, "IMAP server port")
	cmd.Flags().StringVar(&encryption, "encryption", string(accounts.EncryptionTLS), "transport security (tls, starttls, none)")
	cmd.Flags().StringVar(&username, "username", "", "login username (defaults to email)")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted if omitted)")
	cmd.Flags().StringVar(&accessToken, "token", "", "OAuth access token for google accounts")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			accts, err := reg.List()
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if len(accts) == 0 {
				fmt.Println("No accounts configured. Run 'maildock account add' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tPROVIDER\tCREATED")
			for _, a := range accts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					a.ID,
					a.Email,
					a.Provider,
					a.CreatedAt.Format(time.DateOnly),
				)
			}
			return w.Flush()
		},
	}
}

func newAccountRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [email or id]",
		Short: "Remove an account and its cached mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			acct, err := resolveAccount(reg, args[0])
			if err != nil {
				return err
			}

			if err := reg.Remove(acct.ID); err != nil {
				return fmt.Errorf("failed to remove account: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			// Cached rows cascade from the account row.
			if err := db.DeleteAccount(cmd.Context(), acct.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to drop cached mail: %v\n", err)
			}

			fmt.Printf("Account removed: %s\n", acct.Email)
			return nil
		},
	}
}
