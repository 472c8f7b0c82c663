package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marek/maildock/internal/domain"
	"github.com/marek/maildock/internal/store"
)

const folderColumns = `id, account_id, name, path, role, uid_validity, uid_next, total_count`

func scanFolder(row interface{ Scan(...any) error }) (*domain.Folder, error) {
	var f domain.Folder
	err := row.Scan(&f.ID, &f.AccountID, &f.Name, &f.Path, &f.Role,
		&f.UIDValidity, &f.UIDNext, &f.TotalCount)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// InsertFolder creates the folder row and fills in its surrogate key.
func (s *DB) InsertFolder(ctx context.Context, folder *domain.Folder) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (account_id, name, path, role, uid_validity, uid_next, total_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		folder.AccountID, folder.Name, folder.Path, folder.Role,
		folder.UIDValidity, folder.UIDNext, folder.TotalCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert folder %s: %w", folder.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get folder id: %w", err)
	}
	folder.ID = id
	return nil
}

func (s *DB) GetFolder(ctx context.Context, id int64) (*domain.Folder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %d: %w", id, err)
	}
	return f, nil
}

func (s *DB) GetFolderByPath(ctx context.Context, accountID, path string) (*domain.Folder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE account_id = ? AND path = ?`, accountID, path)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", path, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", path, err)
	}
	return f, nil
}

func (s *DB) ListFolders(ctx context.Context, accountID string) ([]domain.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE account_id = ? ORDER BY path`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []domain.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

func (s *DB) UpdateFolderRole(ctx context.Context, folderID int64, role domain.Role) error {
	_, err := s.db.ExecContext(ctx, `UPDATE folders SET role = ? WHERE id = ?`, role, folderID)
	if err != nil {
		return fmt.Errorf("failed to update role for folder %d: %w", folderID, err)
	}
	return nil
}

// AdvanceCheckpoint records the server state that was fully reconciled.
// Called once per folder, strictly after every batch of the pass committed.
func (s *DB) AdvanceCheckpoint(ctx context.Context, folderID int64, state domain.FolderState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE folders SET uid_validity = ?, uid_next = ?, total_count = ? WHERE id = ?`,
		state.UIDValidity, state.UIDNext, state.TotalCount, folderID,
	)
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint for folder %d: %w", folderID, err)
	}
	return nil
}

// PurgeFolderEmails deletes every cached email for the folder. Used when the
// server's validity token changes and cached UIDs become meaningless.
func (s *DB) PurgeFolderEmails(ctx context.Context, folderID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE folder_id = ?`, folderID)
	if err != nil {
		return fmt.Errorf("failed to purge emails for folder %d: %w", folderID, err)
	}
	return nil
}
