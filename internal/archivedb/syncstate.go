package archivedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

const (
	syncStateColumns = `mailbox_id, last_sync_time, last_batch_id, delta_token, created_at, updated_at`

	sqlGetSyncState = `SELECT ` + syncStateColumns + ` FROM sync_state WHERE mailbox_id = ?`

	sqlUpsertSyncState = `INSERT INTO sync_state (` + syncStateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(mailbox_id) DO UPDATE SET
			last_sync_time = excluded.last_sync_time,
			last_batch_id  = excluded.last_batch_id,
			delta_token    = excluded.delta_token,
			updated_at     = excluded.updated_at`
)

func (s *Store) prepareSyncStateStmts(ctx context.Context) error {
	var err error

	if s.syncStateStmts.get, err = s.prepare(ctx, sqlGetSyncState); err != nil {
		return err
	}

	if s.syncStateStmts.upsert, err = s.prepare(ctx, sqlUpsertSyncState); err != nil {
		return err
	}

	return nil
}

// GetSyncState returns the mailbox's persisted sync state, or a
// archiveerr.KindNotFound error before the first sync has ever completed.
func (s *Store) GetSyncState(ctx context.Context, mailboxID string) (*SyncState, error) {
	st := &SyncState{}

	var lastSyncTime sql.NullInt64

	var lastBatchID, deltaToken sql.NullString

	err := s.syncStateStmts.get.QueryRowContext(ctx, mailboxID).Scan(
		&st.MailboxID, &lastSyncTime, &lastBatchID, &deltaToken, &st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archiveerr.New(archiveerr.KindNotFound, "no sync state for mailbox "+mailboxID, err)
	}

	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "getting sync state", err)
	}

	if lastSyncTime.Valid {
		st.LastSyncTime = &lastSyncTime.Int64
	}

	st.LastBatchID = lastBatchID.String
	st.DeltaToken = deltaToken.String

	return st, nil
}

// UpsertSyncState writes the mailbox's sync state. Per spec.md §3 invariant
// 5, a new delta_token always fully replaces the previous one — there is no
// merge semantics between successive tokens.
func (s *Store) UpsertSyncState(ctx context.Context, st *SyncState) error {
	now := NowNano()
	if st.CreatedAt == 0 {
		st.CreatedAt = now
	}

	st.UpdatedAt = now

	_, err := s.syncStateStmts.upsert.ExecContext(ctx,
		st.MailboxID, st.LastSyncTime, nullableString(st.LastBatchID), nullableString(st.DeltaToken),
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting sync state", err)
	}

	return nil
}

// UpsertSyncState is the transactional counterpart of Store.UpsertSyncState,
// used by a folder checkpoint that also bumps SyncState.last_batch_id.
func (t *Tx) UpsertSyncState(ctx context.Context, st *SyncState) error {
	now := NowNano()
	if st.CreatedAt == 0 {
		st.CreatedAt = now
	}

	st.UpdatedAt = now

	stmt := t.stmt(ctx, t.store.syncStateStmts.upsert)

	_, err := stmt.ExecContext(ctx,
		st.MailboxID, st.LastSyncTime, nullableString(st.LastBatchID), nullableString(st.DeltaToken),
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting sync state in tx", err)
	}

	return nil
}
