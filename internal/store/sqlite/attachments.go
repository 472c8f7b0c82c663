package sqlite

import (
	"context"
	"fmt"

	"github.com/marek/maildock/internal/domain"
)

// ReplaceAttachments swaps the attachment metadata rows for an email in one
// transaction. Blob content is content-addressed and stored elsewhere.
func (s *DB) ReplaceAttachments(ctx context.Context, emailID int64, attachments []domain.Attachment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE email_id = ?`, emailID); err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}

	for _, att := range attachments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attachments (email_id, filename, mime_type, size, content_hash)
			 VALUES (?, ?, ?, ?, ?)`,
			emailID, att.Filename, att.MIMEType, att.Size, att.ContentHash,
		)
		if err != nil {
			return fmt.Errorf("failed to insert attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attachment update: %w", err)
	}
	return nil
}

func (s *DB) ListAttachments(ctx context.Context, emailID int64) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email_id, filename, mime_type, size, content_hash
		 FROM attachments WHERE email_id = ? ORDER BY id`, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.EmailID, &a.Filename, &a.MIMEType, &a.Size, &a.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
