package syncengine

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/archivedb"
)

// runCursorInvalidFallback implements spec.md §4.5.4: when the folder's
// delta cursor is rejected as expired/invalid, fall back to a date-window
// listing (or, with no prior sync, a fresh initial delta) instead of
// surfacing the error. The folder's delta_token is deliberately left
// untouched — only last_sync_time advances — so the next run re-establishes
// a fresh cursor via the normal page-by-page path.
func (e *Engine) runCursorInvalidFallback(ctx context.Context, folder *archivedb.Folder) (Report, error) {
	report := Report{}

	if folder.LastSyncTime == nil {
		// No prior successful sync: start a full initial delta with no
		// cursor, through the normal pipeline.
		folder.DeltaToken = ""
		return e.syncFolder(ctx, folder)
	}

	since := archivedb.FromUnixNano(*folder.LastSyncTime).Add(-dateWindowOverlap)

	items, err := e.provider.ListMessagesSince(ctx, folder.GraphID, since)
	if err != nil {
		return report, err
	}

	batch := &checkpointBatch{}

	// The fallback query never returns deletion/move facets — it is a
	// plain listing, not a delta page — so every item is a present event;
	// dedupe by immutable_id absorbs the 60-minute overlap window.
	var toDownload []int

	for i := range items {
		if _, err := e.store.GetMessageByImmutableID(ctx, items[i].ImmutableID); err == nil {
			report.Skipped++
			continue
		}

		toDownload = append(toDownload, i)
	}

	if ctx.Err() != nil {
		return report, e.flushCancelled(ctx, folder, batch, "", 0, 0)
	}

	downloads := e.downloadPresent(ctx, items, toDownload)

	for _, i := range toDownload {
		e.applyPresent(folder, items[i], downloads[i], batch, &report)
	}

	now := archivedb.NowNano()

	if err := e.commitFallback(ctx, folder, batch, now); err != nil {
		return report, err
	}

	return report, nil
}

// commitFallback writes the batch's messages and advances last_sync_time
// only, in one transaction, leaving delta_token exactly as it was.
func (e *Engine) commitFallback(ctx context.Context, folder *archivedb.Folder, batch *checkpointBatch, lastSyncTime int64) error {
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

	if err := tx.UpdateFolderCursor(ctx, folder.GraphID, folder.DeltaToken, lastSyncTime); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	pending := batch.hookPending
	batch.reset()
	folder.LastSyncTime = &lastSyncTime

	if e.opts.OnMessageArchived != nil {
		for _, m := range pending {
			e.opts.OnMessageArchived(ctx, m)
		}
	}

	return nil
}
