package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marek/maildock/internal/domain"
	"github.com/marek/maildock/internal/store"
)

const emailColumns = `id, account_id, folder_id, remote_id, message_id, subject,
	sender_name, sender_address, date, flags, has_attachments,
	COALESCE(body_text, ''), COALESCE(body_html, '')`

func scanEmail(row interface{ Scan(...any) error }) (*domain.Email, error) {
	var e domain.Email
	var flagsJSON string
	err := row.Scan(&e.ID, &e.AccountID, &e.FolderID, &e.RemoteID, &e.MessageID,
		&e.Subject, &e.Sender.Name, &e.Sender.Addr, &e.Date, &flagsJSON,
		&e.HasAttachments, &e.BodyText, &e.BodyHTML)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flagsJSON), &e.Flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	return &e, nil
}

// UpsertEnvelopes writes one batch of fetched envelopes in a single
// transaction and returns the affected local email ids. Rows are keyed on
// (folder_id, remote_id); on conflict only the flags change — subject,
// sender and date are immutable once cached, and lazily fetched bodies
// survive re-syncs.
func (s *DB) UpsertEnvelopes(ctx context.Context, accountID string, folderID int64, envelopes []domain.Email) ([]int64, error) {
	if len(envelopes) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(envelopes))
	for i := range envelopes {
		env := &envelopes[i]
		flagsJSON, err := json.Marshal(env.Flags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal flags: %w", err)
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO emails (account_id, folder_id, remote_id, message_id, subject,
				sender_name, sender_address, date, flags, has_attachments)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(folder_id, remote_id) DO UPDATE SET
				flags = excluded.flags
			RETURNING id`,
			accountID, folderID, env.RemoteID, env.MessageID, env.Subject,
			env.Sender.Name, env.Sender.Addr, env.Date.UTC(),
			string(flagsJSON), env.HasAttachments,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert email uid %d: %w", env.RemoteID, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit envelope batch: %w", err)
	}
	return ids, nil
}

func (s *DB) GetEmail(ctx context.Context, id int64) (*domain.Email, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email %d: %w", id, err)
	}
	return e, nil
}

func (s *DB) GetEmailByUID(ctx context.Context, folderID int64, uid uint32) (*domain.Email, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE folder_id = ? AND remote_id = ?`, folderID, uid)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email uid %d in folder %d: %w", uid, folderID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email uid %d: %w", uid, err)
	}
	return e, nil
}

// ListEmails returns cached envelopes, newest first.
func (s *DB) ListEmails(ctx context.Context, opts store.ListEmailOptions) ([]domain.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE 1=1`
	var args []any
	if opts.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, opts.AccountID)
	}
	if opts.FolderID != 0 {
		query += ` AND folder_id = ?`
		args = append(args, opts.FolderID)
	}
	query += ` ORDER BY date DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []domain.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

func (s *DB) CountEmails(ctx context.Context, folderID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM emails WHERE folder_id = ?`, folderID)
	if err != nil {
		return 0, fmt.Errorf("failed to count emails for folder %d: %w", folderID, err)
	}
	return count, nil
}

// SetEmailBody stores the lazily fetched message body.
func (s *DB) SetEmailBody(ctx context.Context, emailID int64, bodyText, bodyHTML string, hasAttachments bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE emails SET body_text = ?, body_html = ?, has_attachments = ? WHERE id = ?`,
		bodyText, bodyHTML, hasAttachments, emailID,
	)
	if err != nil {
		return fmt.Errorf("failed to set body for email %d: %w", emailID, err)
	}
	return nil
}
