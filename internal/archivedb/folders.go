package archivedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

const (
	folderColumns = `graph_id, parent_folder_id, local_path, display_name,
		total_item_count, unread_item_count, delta_token, last_sync_time,
		created_at, updated_at`

	sqlGetFolderByPath = `SELECT ` + folderColumns + ` FROM folders WHERE local_path = ?`
	sqlGetFolderByID   = `SELECT ` + folderColumns + ` FROM folders WHERE graph_id = ?`
	sqlListFolders     = `SELECT ` + folderColumns + ` FROM folders ORDER BY local_path`

	sqlUpsertFolder = `INSERT INTO folders (` + folderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(graph_id) DO UPDATE SET
			parent_folder_id  = excluded.parent_folder_id,
			local_path        = excluded.local_path,
			display_name      = excluded.display_name,
			total_item_count  = excluded.total_item_count,
			unread_item_count = excluded.unread_item_count,
			delta_token       = excluded.delta_token,
			last_sync_time    = excluded.last_sync_time,
			updated_at        = excluded.updated_at`

	sqlDeleteFolderByID = `DELETE FROM folders WHERE graph_id = ?`
)

func (s *Store) prepareFolderStmts(ctx context.Context) error {
	var err error

	if s.folderStmts.upsert, err = s.prepare(ctx, sqlUpsertFolder); err != nil {
		return err
	}

	if s.folderStmts.getByPath, err = s.prepare(ctx, sqlGetFolderByPath); err != nil {
		return err
	}

	if s.folderStmts.getByGraphID, err = s.prepare(ctx, sqlGetFolderByID); err != nil {
		return err
	}

	if s.folderStmts.list, err = s.prepare(ctx, sqlListFolders); err != nil {
		return err
	}

	if s.folderStmts.deleteByGraphID, err = s.prepare(ctx, sqlDeleteFolderByID); err != nil {
		return err
	}

	return nil
}

func scanFolder(row interface{ Scan(...any) error }) (*Folder, error) {
	f := &Folder{}

	var parentFolderID, deltaToken sql.NullString

	var lastSyncTime sql.NullInt64

	err := row.Scan(
		&f.GraphID, &parentFolderID, &f.LocalPath, &f.DisplayName,
		&f.TotalItemCount, &f.UnreadItemCount, &deltaToken, &lastSyncTime,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.ParentFolderID = parentFolderID.String
	f.DeltaToken = deltaToken.String

	if lastSyncTime.Valid {
		f.LastSyncTime = &lastSyncTime.Int64
	}

	return f, nil
}

// GetFolderByPath looks up a folder by its unique local mirror path.
func (s *Store) GetFolderByPath(ctx context.Context, localPath string) (*Folder, error) {
	f, err := scanFolder(s.folderStmts.getByPath.QueryRowContext(ctx, localPath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archiveerr.New(archiveerr.KindNotFound, "folder not found: "+localPath, err)
	}

	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "getting folder by path", err)
	}

	return f, nil
}

// GetFolderByGraphID looks up a folder by the provider's identifier.
func (s *Store) GetFolderByGraphID(ctx context.Context, graphID string) (*Folder, error) {
	f, err := scanFolder(s.folderStmts.getByGraphID.QueryRowContext(ctx, graphID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archiveerr.New(archiveerr.KindNotFound, "folder not found: "+graphID, err)
	}

	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "getting folder by graph id", err)
	}

	return f, nil
}

// ListFolders returns every known folder, ordered by local path.
func (s *Store) ListFolders(ctx context.Context) ([]*Folder, error) {
	rows, err := s.folderStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "listing folders", err)
	}
	defer rows.Close()

	var out []*Folder

	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindSchema, "scanning folder row", err)
		}

		out = append(out, f)
	}

	return out, rows.Err()
}

// UpsertFolder inserts or updates a folder keyed by GraphID. When the
// provider reassigns a folder a new GraphID but its LocalPath still matches
// an existing row (a provider-side recreate that mailkeep treats as the
// same archived folder), the existing row's delta cursor and last sync time
// are carried forward onto the new row before the old row is removed, so a
// folder never silently restarts its delta sync after a provider-side
// identity churn.
func (s *Store) UpsertFolder(ctx context.Context, f *Folder) error {
	existing, err := s.GetFolderByPath(ctx, f.LocalPath)
	if err == nil && existing.GraphID != f.GraphID {
		if f.DeltaToken == "" {
			f.DeltaToken = existing.DeltaToken
		}

		if f.LastSyncTime == nil {
			f.LastSyncTime = existing.LastSyncTime
		}

		if _, delErr := s.folderStmts.deleteByGraphID.ExecContext(ctx, existing.GraphID); delErr != nil {
			return archiveerr.New(archiveerr.KindSchema, "retiring superseded folder row", delErr)
		}
	} else if err != nil && !archiveerr.Is(err, archiveerr.KindNotFound) {
		return err
	}

	now := NowNano()
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}

	f.UpdatedAt = now

	_, err = s.folderStmts.upsert.ExecContext(ctx,
		f.GraphID, nullableString(f.ParentFolderID), f.LocalPath, f.DisplayName,
		f.TotalItemCount, f.UnreadItemCount, nullableString(f.DeltaToken), f.LastSyncTime,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting folder "+f.LocalPath, err)
	}

	return nil
}

// UpdateFolderCursor writes a folder's terminal delta cursor and last sync
// time as part of a checkpoint transaction, without touching its other
// fields. Used when a folder's delta page iteration reaches its last page.
func (t *Tx) UpdateFolderCursor(ctx context.Context, graphID, deltaToken string, lastSyncTime int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE folders SET delta_token = ?, last_sync_time = ?, updated_at = ? WHERE graph_id = ?`,
		nullableString(deltaToken), lastSyncTime, NowNano(), graphID,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "updating folder cursor in tx", err)
	}

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
