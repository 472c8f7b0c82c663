package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/marek/maildock/internal/domain"
	"github.com/marek/maildock/internal/store"
)

func TestUpsertEnvelopes_InsertAndUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct1")
	folder := seedFolder(t, db, "acct1", "INBOX")

	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, []domain.Email{
		{
			RemoteID:  7,
			MessageID: "<m1@x>",
			Subject:   "original subject",
			Sender:    domain.Address{Name: "Ann", Addr: "ann@example.com"},
			Date:      date,
			Flags:     []string{"\\Seen"},
		},
	})
	if err != nil {
		t.Fatalf("UpsertEnvelopes() error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("UpsertEnvelopes() returned %d ids, want 1", len(ids))
	}

	// Re-observe the same UID with different flags and a tampered subject:
	// only the flags may change.
	ids2, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, []domain.Email{
		{
			RemoteID: 7,
			Subject:  "tampered subject",
			Sender:   domain.Address{Addr: "other@example.com"},
			Date:     date.Add(time.Hour),
			Flags:    []string{"\\Seen", "\\Flagged"},
		},
	})
	if err != nil {
		t.Fatalf("second UpsertEnvelopes() error: %v", err)
	}
	if ids2[0] != ids[0] {
		t.Errorf("conflicting upsert returned id %d, want existing id %d", ids2[0], ids[0])
	}

	got, err := db.GetEmail(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetEmail() error: %v", err)
	}
	if got.Subject != "original subject" {
		t.Errorf("subject = %q, want immutable original", got.Subject)
	}
	if !got.Date.Equal(date) {
		t.Errorf("date = %v, want immutable original %v", got.Date, date)
	}
	if !got.HasFlag("\\Flagged") {
		t.Error("flags were not updated on conflict")
	}

	count, _ := db.CountEmails(ctx, folder.ID)
	if count != 1 {
		t.Errorf("email count = %d, want 1 (no duplicate)", count)
	}
}

func TestUpsertEnvelopes_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct1")
	folder := seedFolder(t, db, "acct1", "INBOX")

	batch := []domain.Email{
		{RemoteID: 1, Subject: "a", Sender: domain.Address{Addr: "a@x.com"}, Date: time.Now(), Flags: []string{"\\Seen"}},
		{RemoteID: 2, Subject: "b", Sender: domain.Address{Addr: "b@x.com"}, Date: time.Now()},
		{RemoteID: 3, Subject: "c", Sender: domain.Address{Addr: "c@x.com"}, Date: time.Now()},
	}
	if _, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, batch); err != nil {
		t.Fatalf("UpsertEnvelopes() error: %v", err)
	}
	if _, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, batch); err != nil {
		t.Fatalf("repeat UpsertEnvelopes() error: %v", err)
	}

	count, err := db.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("CountEmails() error: %v", err)
	}
	if count != 3 {
		t.Errorf("email count = %d, want 3", count)
	}
}

func TestUpsertEnvelopes_EmptyBatch(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "acct1")
	folder := seedFolder(t, db, "acct1", "INBOX")

	ids, err := db.UpsertEnvelopes(context.Background(), "acct1", folder.ID, nil)
	if err != nil {
		t.Fatalf("UpsertEnvelopes(nil) error: %v", err)
	}
	if ids != nil {
		t.Errorf("UpsertEnvelopes(nil) = %v, want nil", ids)
	}
}

func TestUpsertEnvelopes_SameUIDDifferentFolders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct1")
	inbox := seedFolder(t, db, "acct1", "INBOX")
	sent := seedFolder(t, db, "acct1", "Sent")

	for _, f := range []*domain.Folder{inbox, sent} {
		_, err := db.UpsertEnvelopes(ctx, "acct1", f.ID, []domain.Email{
			{RemoteID: 5, Subject: "shared uid", Sender: domain.Address{Addr: "x@y.com"}, Date: time.Now()},
		})
		if err != nil {
			t.Fatalf("UpsertEnvelopes() error: %v", err)
		}
	}

	// Uniqueness is scoped to the folder, so both rows must exist.
	for _, f := range []*domain.Folder{inbox, sent} {
		if _, err := db.GetEmailByUID(ctx, f.ID, 5); err != nil {
			t.Errorf("GetEmailByUID(folder %d) error: %v", f.ID, err)
		}
	}
}

func TestListEmails_OrderAndFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct1")
	folder := seedFolder(t, db, "acct1", "INBOX")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []domain.Email
	for i := 0; i < 5; i++ {
		batch = append(batch, domain.Email{
			RemoteID: uint32(i + 1),
			Subject:  "msg",
			Sender:   domain.Address{Addr: "x@y.com"},
			Date:     base.Add(time.Duration(i) * time.Hour),
		})
	}
	if _, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, batch); err != nil {
		t.Fatalf("UpsertEnvelopes() error: %v", err)
	}

	emails, err := db.ListEmails(ctx, store.ListEmailOptions{FolderID: folder.ID, Limit: 3})
	if err != nil {
		t.Fatalf("ListEmails() error: %v", err)
	}
	if len(emails) != 3 {
		t.Fatalf("ListEmails() returned %d, want 3", len(emails))
	}
	// Newest first.
	if emails[0].RemoteID != 5 || emails[2].RemoteID != 3 {
		t.Errorf("order = [%d %d %d], want [5 4 3]",
			emails[0].RemoteID, emails[1].RemoteID, emails[2].RemoteID)
	}
}

func TestSetEmailBody_SurvivesResync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct1")
	folder := seedFolder(t, db, "acct1", "INBOX")

	env := domain.Email{RemoteID: 9, Subject: "s", Sender: domain.Address{Addr: "x@y.com"}, Date: time.Now()}
	ids, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, []domain.Email{env})
	if err != nil {
		t.Fatalf("UpsertEnvelopes() error: %v", err)
	}

	if err := db.SetEmailBody(ctx, ids[0], "plain body", "<p>html</p>", true); err != nil {
		t.Fatalf("SetEmailBody() error: %v", err)
	}

	// A later sync pass re-observes the envelope; the cached body must stay.
	if _, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, []domain.Email{env}); err != nil {
		t.Fatalf("re-upsert error: %v", err)
	}

	got, err := db.GetEmail(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetEmail() error: %v", err)
	}
	if got.BodyText != "plain body" || got.BodyHTML != "<p>html</p>" {
		t.Errorf("body = (%q, %q), want cached body preserved", got.BodyText, got.BodyHTML)
	}
	if !got.HasAttachments {
		t.Error("has_attachments flag lost on re-upsert")
	}
}

func TestReplaceAttachments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct1")
	folder := seedFolder(t, db, "acct1", "INBOX")

	ids, err := db.UpsertEnvelopes(ctx, "acct1", folder.ID, []domain.Email{
		{RemoteID: 1, Subject: "s", Sender: domain.Address{Addr: "x@y.com"}, Date: time.Now()},
	})
	if err != nil {
		t.Fatalf("UpsertEnvelopes() error: %v", err)
	}
	emailID := ids[0]

	atts := []domain.Attachment{
		{Filename: "a.pdf", MIMEType: "application/pdf", Size: 1024, ContentHash: "abcd"},
		{Filename: "b.png", MIMEType: "image/png", Size: 2048, ContentHash: "ef01"},
	}
	if err := db.ReplaceAttachments(ctx, emailID, atts); err != nil {
		t.Fatalf("ReplaceAttachments() error: %v", err)
	}

	got, err := db.ListAttachments(ctx, emailID)
	if err != nil {
		t.Fatalf("ListAttachments() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListAttachments() returned %d, want 2", len(got))
	}
	if got[0].Filename != "a.pdf" || got[0].ContentHash != "abcd" {
		t.Errorf("attachment[0] = %+v", got[0])
	}

	// Replacing again must not duplicate rows.
	if err := db.ReplaceAttachments(ctx, emailID, atts[:1]); err != nil {
		t.Fatalf("second ReplaceAttachments() error: %v", err)
	}
	got, _ = db.ListAttachments(ctx, emailID)
	if len(got) != 1 {
		t.Errorf("attachments after replace = %d, want 1", len(got))
	}
}
