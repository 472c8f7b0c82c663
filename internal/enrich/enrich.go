// Package enrich fetches full message bodies on demand. Sync passes store
// envelopes only; the first read of a message pulls its body and
// attachments, caches them, and never fetches them again.
package enrich

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/blob"
	"github.com/marek/maildock/internal/domain"
	"github.com/marek/maildock/internal/imap"
	"github.com/marek/maildock/internal/notify"
	"github.com/marek/maildock/internal/store"
)

// AccountSource resolves account ids to connection credentials.
type AccountSource interface {
	Get(id string) (*accounts.Config, error)
}

// Enricher loads message bodies into the cache on first access.
type Enricher struct {
	store store.Store
	accts AccountSource
	dial  imap.Dialer
	blobs *blob.Store
	bus   *notify.Bus
	log   *logrus.Logger
}

// New creates an Enricher. blobs may be nil, in which case attachment
// payloads are not persisted and only their metadata is recorded.
func New(st store.Store, accts AccountSource, dial imap.Dialer, blobs *blob.Store, bus *notify.Bus, log *logrus.Logger) *Enricher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Enricher{store: st, accts: accts, dial: dial, blobs: blobs, bus: bus, log: log}
}

// EnsureBody returns the email with its body populated, fetching it from
// the server if the cache only holds the envelope.
func (e *Enricher) EnsureBody(ctx context.Context, emailID int64) (*domain.Email, error) {
	email, err := e.store.GetEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if email.BodyText != "" || email.BodyHTML != "" {
		return email, nil
	}

	folder, err := e.store.GetFolder(ctx, email.FolderID)
	if err != nil {
		return nil, err
	}
	acct, err := e.accts.Get(email.AccountID)
	if err != nil {
		return nil, err
	}

	session, err := e.dial(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer session.Close()

	if _, err := session.SelectFolder(ctx, folder.Path); err != nil {
		return nil, err
	}
	msg, err := session.FetchMessage(ctx, email.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message body: %w", err)
	}

	attachments := make([]domain.Attachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		stored := domain.Attachment{
			EmailID:  emailID,
			Filename: att.Filename,
			MIMEType: att.MIMEType,
			Size:     int64(len(att.Data)),
		}
		if e.blobs != nil {
			hash, err := e.blobs.Save(att.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to store attachment %s: %w", att.Filename, err)
			}
			stored.ContentHash = hash
		}
		attachments = append(attachments, stored)
	}
	if err := e.store.ReplaceAttachments(ctx, emailID, attachments); err != nil {
		return nil, err
	}

	hasAttachments := len(attachments) > 0
	if err := e.store.SetEmailBody(ctx, emailID, msg.BodyText, msg.BodyHTML, hasAttachments); err != nil {
		return nil, err
	}

	email.BodyText = msg.BodyText
	email.BodyHTML = msg.BodyHTML
	email.HasAttachments = hasAttachments
	e.bus.EmailsUpdated(email.AccountID, []int64{emailID})
	return email, nil
}

// Attachment returns the stored payload of an attachment.
func (e *Enricher) Attachment(ctx context.Context, emailID int64, filename string) ([]byte, error) {
	if e.blobs == nil {
		return nil, fmt.Errorf("attachment storage is disabled")
	}
	atts, err := e.store.ListAttachments(ctx, emailID)
	if err != nil {
		return nil, err
	}
	for _, att := range atts {
		if att.Filename == filename {
			return e.blobs.Read(att.ContentHash)
		}
	}
	return nil, fmt.Errorf("attachment %s: %w", filename, store.ErrNotFound)
}
