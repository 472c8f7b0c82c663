package store

import (
	"context"
	"errors"

	"github.com/marek/maildock/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for the local mail cache.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// Folders and sync checkpoints
	InsertFolder(ctx context.Context, folder *domain.Folder) error
	GetFolder(ctx context.Context, id int64) (*domain.Folder, error)
	GetFolderByPath(ctx context.Context, accountID, path string) (*domain.Folder, error)
	ListFolders(ctx context.Context, accountID string) ([]domain.Folder, error)
	UpdateFolderRole(ctx context.Context, folderID int64, role domain.Role) error
	AdvanceCheckpoint(ctx context.Context, folderID int64, state domain.FolderState) error
	PurgeFolderEmails(ctx context.Context, folderID int64) error

	// Emails
	UpsertEnvelopes(ctx context.Context, accountID string, folderID int64, envelopes []domain.Email) ([]int64, error)
	GetEmail(ctx context.Context, id int64) (*domain.Email, error)
	GetEmailByUID(ctx context.Context, folderID int64, uid uint32) (*domain.Email, error)
	ListEmails(ctx context.Context, opts ListEmailOptions) ([]domain.Email, error)
	CountEmails(ctx context.Context, folderID int64) (int, error)
	SetEmailBody(ctx context.Context, emailID int64, bodyText, bodyHTML string, hasAttachments bool) error

	// Attachments
	ReplaceAttachments(ctx context.Context, emailID int64, attachments []domain.Attachment) error
	ListAttachments(ctx context.Context, emailID int64) ([]domain.Attachment, error)

	// Lifecycle
	Close() error
}

// ListEmailOptions configures email listing queries.
type ListEmailOptions struct {
	AccountID string
	FolderID  int64
	Limit     int
	Offset    int
}
