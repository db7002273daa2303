package syncengine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/archiveerr"
	"github.com/mailkeep/mailkeep/internal/emlstore"
	"github.com/mailkeep/mailkeep/internal/mailgraph"
)

const quarantineReasonDeleted = "deleted_in_provider"

// syncFolder runs the per-folder pipeline (spec.md §4.5.2–§4.5.4): resolve
// the resume cursor, page through the folder's delta feed, classify and
// apply each item, checkpointing along the way.
func (e *Engine) syncFolder(ctx context.Context, folder *archivedb.Folder) (Report, error) {
	report := Report{}

	progress, err := e.store.GetFolderSyncProgress(ctx, folder.GraphID)

	var (
		cursor            string
		skipWithinPage    int64
		pageNumber        int64
		messagesProcessed int64
	)

	switch {
	case err == nil:
		cursor = progress.PendingNextLink
		skipWithinPage = progress.PendingMessageIndex
		pageNumber = progress.PendingPageNumber
		messagesProcessed = progress.MessagesProcessed
	case archiveerr.Is(err, archiveerr.KindNotFound):
		cursor = folder.DeltaToken
	default:
		return report, err
	}

	batch := &checkpointBatch{messagesProcessed: messagesProcessed}
	processedSinceCheckpoint := 0

	for {
		if ctx.Err() != nil {
			return report, e.flushCancelled(ctx, folder, batch, cursor, pageNumber, skipWithinPage)
		}

		pageCursor := cursor

		page, err := e.provider.Delta(ctx, folder.GraphID, cursor)
		if err != nil {
			if mailgraph.IsCursorInvalid(err) {
				fallbackReport, ferr := e.runCursorInvalidFallback(ctx, folder)
				mergeReport(&report, fallbackReport)

				return report, ferr
			}

			if flushErr := e.commitCheckpoint(ctx, folder, batch, false, ""); flushErr != nil {
				return report, flushErr
			}

			return report, err
		}

		startIdx := int(skipWithinPage)
		skipWithinPage = 0

		for i := startIdx; i < len(page.Items); i++ {
			if ctx.Err() != nil {
				batch.pendingNextLink = pageCursor
				batch.pendingPageNumber = pageNumber
				batch.pendingMessageIndex = int64(i)

				return report, e.flushCancelled(ctx, folder, batch, pageCursor, pageNumber, int64(i))
			}

			e.applyClassifiedItems(ctx, folder, page.Items, i, i+1, batch, &report)

			processedSinceCheckpoint++
			messagesProcessed++
			batch.messagesProcessed = messagesProcessed

			if processedSinceCheckpoint >= e.opts.CheckpointInterval {
				batch.pendingNextLink = pageCursor
				batch.pendingPageNumber = pageNumber
				batch.pendingMessageIndex = int64(i + 1)

				if err := e.commitCheckpoint(ctx, folder, batch, false, ""); err != nil {
					return report, err
				}

				processedSinceCheckpoint = 0
			}
		}

		if page.FinalCursor != "" {
			if err := e.commitCheckpoint(ctx, folder, batch, true, page.FinalCursor); err != nil {
				return report, err
			}

			return report, nil
		}

		// Page boundary: always checkpoint here even if the interval
		// threshold wasn't hit mid-page, so a crash never re-fetches and
		// re-applies an already-fully-processed page.
		batch.pendingNextLink = page.NextCursor
		batch.pendingPageNumber = pageNumber + 1
		batch.pendingMessageIndex = 0

		if err := e.commitCheckpoint(ctx, folder, batch, false, ""); err != nil {
			return report, err
		}

		processedSinceCheckpoint = 0
		cursor = page.NextCursor
		pageNumber++
	}
}

// flushCancelled commits whatever is pending as a non-final checkpoint and
// returns the "cancelled" classification, per spec.md §4.5.5.
func (e *Engine) flushCancelled(
	ctx context.Context, folder *archivedb.Folder, batch *checkpointBatch,
	pendingNextLink string, pendingPageNumber, pendingMessageIndex int64,
) error {
	batch.pendingNextLink = pendingNextLink
	batch.pendingPageNumber = pendingPageNumber
	batch.pendingMessageIndex = pendingMessageIndex

	// Checkpointing itself must complete even though the caller's context
	// is done — use a detached context so the in-flight commit isn't
	// aborted by the very cancellation it is flushing.
	if err := e.commitCheckpoint(context.Background(), folder, batch, false, ""); err != nil {
		return err
	}

	return archiveerr.New(archiveerr.KindCancelled, "sync interrupted in folder "+folder.LocalPath, ctx.Err())
}

// applyClassifiedItems classifies and applies items[from:to] in order,
// downloading any present-event bodies first (bounded concurrency, applied
// back in FIFO-by-page order) before touching the database.
func (e *Engine) applyClassifiedItems(
	ctx context.Context, folder *archivedb.Folder, items []mailgraph.Item, from, to int,
	batch *checkpointBatch, report *Report,
) {
	slice := items[from:to]

	kinds := make([]eventKind, len(slice))
	var toDownload []int

	for i, item := range slice {
		kinds[i] = classify(item)

		if kinds[i] == presentEvent {
			if _, err := e.store.GetMessageByImmutableID(ctx, item.ImmutableID); err == nil {
				kinds[i] = -1 // sentinel: already archived, counted as skipped below
				continue
			}

			toDownload = append(toDownload, i)
		}
	}

	downloads := e.downloadPresent(ctx, slice, toDownload)

	for i, item := range slice {
		switch kinds[i] {
		case -1:
			report.Skipped++
		case presentEvent:
			e.applyPresent(folder, item, downloads[i], batch, report)
		case deletionEvent:
			e.applyDeletion(ctx, item, batch, report)
		case moveEvent:
			e.applyMove(ctx, folder, item, batch, report)
		}
	}
}

func (e *Engine) applyPresent(folder *archivedb.Folder, item mailgraph.Item, dl downloadResult, batch *checkpointBatch, report *Report) {
	if dl.err != nil {
		e.logger.Warn("message download failed", slog.String("message_id", item.ID), slog.String("error", dl.err.Error()))
		report.Errors++

		return
	}

	localPath, err := e.eml.Store(dl.bytes, folder.LocalPath, item.Subject, item.ReceivedTime)
	if err != nil {
		e.logger.Warn("writing message failed", slog.String("message_id", item.ID), slog.String("error", err.Error()))
		report.Errors++

		return
	}

	msg := &archivedb.Message{
		GraphID:        item.ID,
		ImmutableID:    item.ImmutableID,
		LocalPath:      localPath,
		FolderPath:     folder.LocalPath,
		Subject:        item.Subject,
		Sender:         item.From,
		ReceivedTime:   item.ReceivedTime.UnixNano(),
		Size:           int64(len(dl.bytes)),
		HasAttachments: item.HasAttachments,
	}

	batch.messages = append(batch.messages, msg)
	batch.hookPending = append(batch.hookPending, msg)
	report.Archived++
}

func (e *Engine) applyDeletion(ctx context.Context, item mailgraph.Item, batch *checkpointBatch, report *Report) {
	msg, err := e.store.GetMessageByImmutableID(ctx, item.ImmutableID)
	if archiveerr.Is(err, archiveerr.KindNotFound) {
		msg, err = e.store.GetMessageByGraphID(ctx, item.ID)
	}

	if err != nil {
		// Never archived in the first place; nothing to quarantine.
		return
	}

	if msg.QuarantinedAt != nil {
		return
	}

	newPath, err := e.eml.MoveToQuarantine(msg.LocalPath)
	if err != nil {
		if errors.Is(err, emlstore.ErrQuarantineSourceMissing) {
			newPath = msg.LocalPath
		} else {
			e.logger.Warn("quarantine move failed", slog.String("message_id", msg.GraphID), slog.String("error", err.Error()))
			report.Errors++

			return
		}
	}

	batch.quarantines = append(batch.quarantines, quarantineOp{
		graphID:      msg.GraphID,
		newLocalPath: newPath,
		reason:       quarantineReasonDeleted,
	})
	report.Quarantined++
}

func (e *Engine) applyMove(ctx context.Context, folder *archivedb.Folder, item mailgraph.Item, batch *checkpointBatch, report *Report) {
	target, err := e.store.GetFolderByGraphID(ctx, item.NewParentFolderID)
	if err != nil {
		// The destination folder hasn't been synced yet this run; it will
		// pick up this message's current folder_path when it is.
		return
	}

	existing, err := e.store.GetMessageByImmutableID(ctx, item.ImmutableID)
	if err != nil {
		// Not archived yet, nothing to relocate metadata for.
		return
	}

	existing.FolderPath = target.LocalPath
	batch.messages = append(batch.messages, existing)
	report.Moved++
}

func mergeReport(into *Report, from Report) {
	into.Archived += from.Archived
	into.Skipped += from.Skipped
	into.Quarantined += from.Quarantined
	into.Moved += from.Moved
	into.Errors += from.Errors
}
