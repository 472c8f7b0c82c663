package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marek/maildock/internal/blob"
	"github.com/marek/maildock/internal/config"
	"github.com/marek/maildock/internal/enrich"
	"github.com/marek/maildock/internal/imap"
	"github.com/marek/maildock/internal/notify"
	"github.com/marek/maildock/internal/store"
)

func newFoldersCmd() *cobra.Command {
	var accountFlag string

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List cached folders",
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

			acct, err := resolveAccount(openRegistry(), accountFlag)
			if err != nil {
				return err
			}

			folders, err := db.ListFolders(cmd.Context(), acct.ID)
			if err != nil {
				return fmt.Errorf("failed to list folders: %w", err)
			}
			if len(folders) == 0 {
				fmt.Println("No folders cached. Run 'maildock sync' first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATH\tROLE\tMESSAGES")
			for _, f := range folders {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", f.ID, f.Path, f.Role, f.TotalCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account ID or email")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		accountFlag string
		folderFlag  string
		limitFlag   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached emails",
		Long:  "List cached emails in a folder, newest first (defaults to INBOX).",
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

			acct, err := resolveAccount(openRegistry(), accountFlag)
			if err != nil {
				return err
			}
			folder, err := db.GetFolderByPath(cmd.Context(), acct.ID, folderFlag)
			if err != nil {
				return fmt.Errorf("folder %s is not cached; run 'maildock sync' first", folderFlag)
			}

			emails, err := db.ListEmails(cmd.Context(), store.ListEmailOptions{
				AccountID: acct.ID,
				FolderID:  folder.ID,
				Limit:     limitFlag,
			})
			if err != nil {
				return fmt.Errorf("failed to list emails: %w", err)
			}
			if len(emails) == 0 {
				fmt.Println("No messages found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UNREAD\tFROM\tSUBJECT\tDATE\tID")
			for _, e := range emails {
				unread := " "
				if !e.IsRead() {
					unread = "*"
				}
				from := e.Sender.Name
				if from == "" {
					from = e.Sender.Addr
				}
				if len(from) > 30 {
					from = from[:27] + "..."
				}
				subject := e.Subject
				if len(subject) > 50 {
					subject = subject[:47] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					unread, from, subject,
					e.Date.Format("Jan 2, 2006"), e.ID,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account ID or email")
	cmd.Flags().StringVar(&folderFlag, "folder", "INBOX", "folder path")
	cmd.Flags().IntVar(&limitFlag, "limit", 50, "maximum number of emails")
	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [email-id]",
		Short: "Read an email",
		Long:  "Print an email's headers and body, fetching the body from the server on first read.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emailID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid email id: %s", args[0])
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

			blobs, err := blob.NewStore(config.DataDir() + "/attachments")
			if err != nil {
				return fmt.Errorf("failed to open attachment store: %w", err)
			}

			enricher := enrich.New(db, openRegistry(), imap.Dial, blobs, notify.NewBus(), newLogger(cfg))
			email, err := enricher.EnsureBody(cmd.Context(), emailID)
			if err != nil {
				return fmt.Errorf("failed to load email: %w", err)
			}

			fmt.Printf("From:    %s\n", email.Sender)
			fmt.Printf("Subject: %s\n", email.Subject)
			fmt.Printf("Date:    %s\n", email.Date.Format("Jan 2, 2006 15:04"))
			fmt.Println()
			if email.BodyText != "" {
				fmt.Println(email.BodyText)
			} else {
				fmt.Println(email.BodyHTML)
			}

			if email.HasAttachments {
				atts, err := db.ListAttachments(cmd.Context(), emailID)
				if err != nil {
					return err
				}
				fmt.Println()
				for _, a := range atts {
					fmt.Printf("Attachment: %s (%s, %d bytes)\n", a.Filename, a.MIMEType, a.Size)
				}
			}
			return nil
		},
	}
}
