// Package imap wraps go-imap v2 behind the small protocol surface the sync
// engine needs: select a folder, fetch envelope ranges, and block on server
// change notifications.
package imap

import (
	"context"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/domain"
)

// FolderInfo describes a mailbox advertised by the server.
type FolderInfo struct {
	Name string
	Path string
	Role domain.Role
}

// AttachmentData is a decoded MIME attachment.
type AttachmentData struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Message is a fully fetched message body.
type Message struct {
	BodyText    string
	BodyHTML    string
	Attachments []AttachmentData
}

// Session is one authenticated protocol connection. Implementations carry
// their own wire-level timeouts; sync passes treat any error as fatal for
// the current folder and retry on the next scheduled pass.
type Session interface {
	// SelectFolder opens the folder read-only and returns its live state.
	SelectFolder(ctx context.Context, path string) (domain.FolderState, error)
	// FetchEnvelopesBySeq fetches envelopes for the inclusive
	// sequence-number range from..to of the selected folder.
	FetchEnvelopesBySeq(ctx context.Context, from, to uint32) ([]domain.Email, error)
	// FetchEnvelopesFromUID fetches envelopes with UID >= start
	// (an open-ended start:* range) of the selected folder.
	FetchEnvelopesFromUID(ctx context.Context, start uint32) ([]domain.Email, error)
	// ListFolders lists the account's selectable folders.
	ListFolders(ctx context.Context) ([]FolderInfo, error)
	// Watch blocks until the server signals a change in the selected
	// folder or ctx is cancelled. Cancellation wins even if the server
	// never responds.
	Watch(ctx context.Context) error
	// FetchMessage fetches and parses the full message body for a UID in
	// the selected folder.
	FetchMessage(ctx context.Context, uid uint32) (*Message, error)
	Close() error
}

// Dialer opens an authenticated Session for an account. The sync engine
// takes a Dialer so tests can substitute fakes.
type Dialer func(ctx context.Context, acct *accounts.Config) (Session, error)
