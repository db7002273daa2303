package archivedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

const (
	progressColumns = `folder_id, pending_next_link, pending_page_number,
		pending_message_index, sync_started_at, last_checkpoint_at, messages_processed`

	sqlGetProgress = `SELECT ` + progressColumns + ` FROM folder_sync_progress WHERE folder_id = ?`

	sqlUpsertProgress = `INSERT INTO folder_sync_progress (` + progressColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET
			pending_next_link     = excluded.pending_next_link,
			pending_page_number   = excluded.pending_page_number,
			pending_message_index = excluded.pending_message_index,
			last_checkpoint_at    = excluded.last_checkpoint_at,
			messages_processed    = excluded.messages_processed`

	sqlDeleteProgress = `DELETE FROM folder_sync_progress WHERE folder_id = ?`
)

func (s *Store) prepareProgressStmts(ctx context.Context) error {
	var err error

	if s.progressStmts.upsert, err = s.prepare(ctx, sqlUpsertProgress); err != nil {
		return err
	}

	if s.progressStmts.get, err = s.prepare(ctx, sqlGetProgress); err != nil {
		return err
	}

	if s.progressStmts.delete, err = s.prepare(ctx, sqlDeleteProgress); err != nil {
		return err
	}

	return nil
}

func scanProgress(row interface{ Scan(...any) error }) (*FolderSyncProgress, error) {
	p := &FolderSyncProgress{}

	var pendingNextLink sql.NullString

	err := row.Scan(
		&p.FolderID, &pendingNextLink, &p.PendingPageNumber,
		&p.PendingMessageIndex, &p.SyncStartedAt, &p.LastCheckpointAt, &p.MessagesProcessed,
	)
	if err != nil {
		return nil, err
	}

	p.PendingNextLink = pendingNextLink.String

	return p, nil
}

// GetFolderSyncProgress returns the checkpointed in-flight sync state for a
// folder, or a archiveerr.KindNotFound error if its previous sync ran to
// completion (per spec.md §3 invariant 4, a row's existence is exactly
// equivalent to an incomplete sync).
func (s *Store) GetFolderSyncProgress(ctx context.Context, folderID string) (*FolderSyncProgress, error) {
	p, err := scanProgress(s.progressStmts.get.QueryRowContext(ctx, folderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archiveerr.New(archiveerr.KindNotFound, "no in-flight sync for folder "+folderID, err)
	}

	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "getting folder sync progress", err)
	}

	return p, nil
}

// UpsertFolderSyncProgress writes a checkpoint. Callers running inside a
// Tx (pairing a progress checkpoint with the message rows it covers) should
// call Tx.UpsertFolderSyncProgress instead so both writes land atomically.
func (s *Store) UpsertFolderSyncProgress(ctx context.Context, p *FolderSyncProgress) error {
	if p.SyncStartedAt == 0 {
		p.SyncStartedAt = NowNano()
	}

	p.LastCheckpointAt = NowNano()

	_, err := s.progressStmts.upsert.ExecContext(ctx,
		p.FolderID, nullableString(p.PendingNextLink), p.PendingPageNumber,
		p.PendingMessageIndex, p.SyncStartedAt, p.LastCheckpointAt, p.MessagesProcessed,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting folder sync progress", err)
	}

	return nil
}

// UpsertFolderSyncProgress is the transactional counterpart of
// Store.UpsertFolderSyncProgress, binding the Store's prepared statement to
// this transaction so a checkpoint and the message batch it covers commit
// together.
func (t *Tx) UpsertFolderSyncProgress(ctx context.Context, p *FolderSyncProgress) error {
	if p.SyncStartedAt == 0 {
		p.SyncStartedAt = NowNano()
	}

	p.LastCheckpointAt = NowNano()

	stmt := t.stmt(ctx, t.store.progressStmts.upsert)

	_, err := stmt.ExecContext(ctx,
		p.FolderID, nullableString(p.PendingNextLink), p.PendingPageNumber,
		p.PendingMessageIndex, p.SyncStartedAt, p.LastCheckpointAt, p.MessagesProcessed,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting folder sync progress in tx", err)
	}

	return nil
}

// DeleteFolderSyncProgress removes the checkpoint row once a folder's sync
// runs to completion.
func (s *Store) DeleteFolderSyncProgress(ctx context.Context, folderID string) error {
	if _, err := s.progressStmts.delete.ExecContext(ctx, folderID); err != nil {
		return archiveerr.New(archiveerr.KindSchema, "deleting folder sync progress", err)
	}

	return nil
}

// DeleteFolderSyncProgress is the transactional counterpart, used when a
// folder's final checkpoint and progress-row removal must commit together.
func (t *Tx) DeleteFolderSyncProgress(ctx context.Context, folderID string) error {
	stmt := t.stmt(ctx, t.store.progressStmts.delete)

	if _, err := stmt.ExecContext(ctx, folderID); err != nil {
		return archiveerr.New(archiveerr.KindSchema, "deleting folder sync progress in tx", err)
	}

	return nil
}
