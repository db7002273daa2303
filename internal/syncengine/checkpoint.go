package syncengine

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/archivedb"
)

// quarantineOp is one deletion event's effect, applied inside a checkpoint
// transaction alongside the batch's message upserts.
type quarantineOp struct {
	graphID      string
	newLocalPath string
	reason       string
}

// checkpointBatch accumulates the mutations produced since the last
// checkpoint commit, per spec.md §4.5.3.
type checkpointBatch struct {
	messages    []*archivedb.Message
	quarantines []quarantineOp
	hookPending []*archivedb.Message

	pendingNextLink     string
	pendingPageNumber   int64
	pendingMessageIndex int64
	messagesProcessed   int64
}

func (b *checkpointBatch) reset() {
	b.messages = nil
	b.quarantines = nil
	b.hookPending = nil
}

// commitCheckpoint writes the accumulated batch in one transaction. When
// final is true, it also writes the folder's terminal delta cursor and
// deletes the FolderSyncProgress row; otherwise it upserts the progress row
// describing exactly where to resume.
func (e *Engine) commitCheckpoint(ctx context.Context, folder *archivedb.Folder, batch *checkpointBatch, final bool, finalDeltaToken string) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range batch.messages {
		if err := tx.UpsertMessage(ctx, m); err != nil {
			return err
		}
	}

	for _, q := range batch.quarantines {
		if err := tx.QuarantineMessage(ctx, q.graphID, q.newLocalPath, q.reason); err != nil {
			return err
		}
	}

	if final {
		if err := tx.DeleteFolderSyncProgress(ctx, folder.GraphID); err != nil {
			return err
		}

		if err := tx.UpdateFolderCursor(ctx, folder.GraphID, finalDeltaToken, archivedb.NowNano()); err != nil {
			return err
		}

		folder.DeltaToken = finalDeltaToken
	} else {
		progress := &archivedb.FolderSyncProgress{
			FolderID:            folder.GraphID,
			PendingNextLink:     batch.pendingNextLink,
			PendingPageNumber:   batch.pendingPageNumber,
			PendingMessageIndex: batch.pendingMessageIndex,
			MessagesProcessed:   batch.messagesProcessed,
		}

		if err := tx.UpsertFolderSyncProgress(ctx, progress); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	pending := batch.hookPending
	batch.reset()

	if e.opts.OnMessageArchived != nil {
		for _, m := range pending {
			e.opts.OnMessageArchived(ctx, m)
		}
	}

	return nil
}
