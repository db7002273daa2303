package archivedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

const (
	messageColumns = `graph_id, immutable_id, local_path, folder_path, subject,
		sender, recipients, received_time, size, has_attachments, in_reply_to,
		conversation_id, quarantined_at, quarantine_reason, created_at, updated_at`

	sqlGetMessageByImmutableID = `SELECT ` + messageColumns + ` FROM messages WHERE immutable_id = ?`
	sqlGetMessageByGraphID     = `SELECT ` + messageColumns + ` FROM messages WHERE graph_id = ?`
	sqlListMessagesByFolder    = `SELECT ` + messageColumns + ` FROM messages WHERE folder_path = ? ORDER BY received_time`

	sqlUpsertMessage = `INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(immutable_id) DO UPDATE SET
			local_path   = excluded.local_path,
			folder_path  = excluded.folder_path,
			updated_at   = excluded.updated_at`

	sqlQuarantineMessage = `UPDATE messages
		SET local_path = ?, quarantined_at = ?, quarantine_reason = ?, updated_at = ?
		WHERE graph_id = ?`

	sqlDeleteMessageByGraphID = `DELETE FROM messages WHERE graph_id = ?`

	sqlAllMessageGraphIDs = `SELECT graph_id FROM messages WHERE quarantined_at IS NULL`
)

// Per spec.md §3 invariant 2 ("only mutable fields are quarantine fields,
// updated_at, and historically move-induced path changes which are now
// disabled"), the upsert's ON CONFLICT clause intentionally updates only
// local_path/folder_path/updated_at: a message is inserted exactly once per
// immutable_id and its content fields never change underneath it.

func (s *Store) prepareMessageStmts(ctx context.Context) error {
	var err error

	if s.messageStmts.upsert, err = s.prepare(ctx, sqlUpsertMessage); err != nil {
		return err
	}

	if s.messageStmts.getByImmutableID, err = s.prepare(ctx, sqlGetMessageByImmutableID); err != nil {
		return err
	}

	if s.messageStmts.getByGraphID, err = s.prepare(ctx, sqlGetMessageByGraphID); err != nil {
		return err
	}

	if s.messageStmts.quarantine, err = s.prepare(ctx, sqlQuarantineMessage); err != nil {
		return err
	}

	if s.messageStmts.listByFolder, err = s.prepare(ctx, sqlListMessagesByFolder); err != nil {
		return err
	}

	if s.messageStmts.deleteByGraphID, err = s.prepare(ctx, sqlDeleteMessageByGraphID); err != nil {
		return err
	}

	if s.messageStmts.allGraphIDs, err = s.prepare(ctx, sqlAllMessageGraphIDs); err != nil {
		return err
	}

	return nil
}

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}

	var quarantinedAt sql.NullInt64

	var quarantineReason sql.NullString

	err := row.Scan(
		&m.GraphID, &m.ImmutableID, &m.LocalPath, &m.FolderPath, &m.Subject,
		&m.Sender, &m.Recipients, &m.ReceivedTime, &m.Size, &m.HasAttachments,
		&m.InReplyTo, &m.ConversationID, &quarantinedAt, &quarantineReason,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if quarantinedAt.Valid {
		m.QuarantinedAt = &quarantinedAt.Int64
	}

	m.QuarantineReason = quarantineReason.String

	return m, nil
}

// UpsertMessage inserts a message record, or — if one already exists for
// the same immutable ID — refreshes only its local path and folder path.
func (s *Store) UpsertMessage(ctx context.Context, m *Message) error {
	now := NowNano()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}

	m.UpdatedAt = now

	_, err := s.messageStmts.upsert.ExecContext(ctx,
		m.GraphID, m.ImmutableID, m.LocalPath, m.FolderPath, m.Subject,
		m.Sender, m.Recipients, m.ReceivedTime, m.Size, m.HasAttachments,
		m.InReplyTo, m.ConversationID, m.QuarantinedAt, nullableString(m.QuarantineReason),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting message "+m.ImmutableID, err)
	}

	return nil
}

// GetMessageByImmutableID is the primary dedup lookup performed before
// fetching a message's MIME body, so an already-archived message is never
// re-downloaded within the same delta window.
func (s *Store) GetMessageByImmutableID(ctx context.Context, immutableID string) (*Message, error) {
	m, err := scanMessage(s.messageStmts.getByImmutableID.QueryRowContext(ctx, immutableID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archiveerr.New(archiveerr.KindNotFound, "message not found: "+immutableID, err)
	}

	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "getting message by immutable id", err)
	}

	return m, nil
}

// GetMessageByGraphID looks up a message by the provider's current item
// identifier.
func (s *Store) GetMessageByGraphID(ctx context.Context, graphID string) (*Message, error) {
	m, err := scanMessage(s.messageStmts.getByGraphID.QueryRowContext(ctx, graphID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archiveerr.New(archiveerr.KindNotFound, "message not found: "+graphID, err)
	}

	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "getting message by graph id", err)
	}

	return m, nil
}

// ListMessagesByFolder returns every archived message whose folder_path
// equals folderPath, ordered by receive time.
func (s *Store) ListMessagesByFolder(ctx context.Context, folderPath string) ([]*Message, error) {
	rows, err := s.messageStmts.listByFolder.QueryContext(ctx, folderPath)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "listing messages by folder", err)
	}
	defer rows.Close()

	var out []*Message

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindSchema, "scanning message row", err)
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

// AllMessageGraphIDs returns the graph IDs of every non-quarantined message,
// ignoring transformation history entirely. The transform command's --force
// flag uses this instead of MessagesNeedingTransformation to re-render every
// message regardless of its recorded config version.
func (s *Store) AllMessageGraphIDs(ctx context.Context) ([]string, error) {
	rows, err := s.messageStmts.allGraphIDs.QueryContext(ctx)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "listing all message graph ids", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var graphID string
		if err := rows.Scan(&graphID); err != nil {
			return nil, archiveerr.New(archiveerr.KindSchema, "scanning graph id", err)
		}

		out = append(out, graphID)
	}

	return out, rows.Err()
}

// QuarantineMessage marks a message as quarantined (the upstream item was
// deleted or failed a security screen), recording the EML's new location —
// internal/emlstore has already moved the file aside — without deleting the
// row, so a resync never re-downloads it.
func (s *Store) QuarantineMessage(ctx context.Context, graphID, newLocalPath, reason string) error {
	now := NowNano()

	_, err := s.messageStmts.quarantine.ExecContext(ctx, newLocalPath, now, reason, now, graphID)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "quarantining message "+graphID, err)
	}

	return nil
}

// UpsertMessage is the transactional counterpart of Store.UpsertMessage,
// used when a checkpoint's message batch must commit alongside its
// FolderSyncProgress row.
func (t *Tx) UpsertMessage(ctx context.Context, m *Message) error {
	now := NowNano()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}

	m.UpdatedAt = now

	stmt := t.stmt(ctx, t.store.messageStmts.upsert)

	_, err := stmt.ExecContext(ctx,
		m.GraphID, m.ImmutableID, m.LocalPath, m.FolderPath, m.Subject,
		m.Sender, m.Recipients, m.ReceivedTime, m.Size, m.HasAttachments,
		m.InReplyTo, m.ConversationID, m.QuarantinedAt, nullableString(m.QuarantineReason),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting message in tx "+m.ImmutableID, err)
	}

	return nil
}

// QuarantineMessage is the transactional counterpart of
// Store.QuarantineMessage.
func (t *Tx) QuarantineMessage(ctx context.Context, graphID, newLocalPath, reason string) error {
	now := NowNano()

	stmt := t.stmt(ctx, t.store.messageStmts.quarantine)

	_, err := stmt.ExecContext(ctx, newLocalPath, now, reason, now, graphID)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "quarantining message in tx "+graphID, err)
	}

	return nil
}
