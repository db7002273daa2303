package syncengine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/archiveerr"
	"github.com/mailkeep/mailkeep/internal/mailgraph"
)

// Run executes one full sync pass: resolve mailbox, load or create sync
// state, enumerate and filter folders, persist folder mappings, then walk
// each surviving folder serially (spec.md §4.5.1).
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	mailboxID, err := e.resolveMailbox(ctx)
	if err != nil {
		return report, err
	}

	syncState, err := e.loadOrCreateSyncState(ctx, mailboxID)
	if err != nil {
		return report, err
	}

	folders, err := e.enumerateFolders(ctx, mailboxID)
	if err != nil {
		return report, err
	}

	survivors := e.filterExcluded(folders)

	localFolders, err := e.persistFolderMappings(ctx, survivors)
	if err != nil {
		return report, err
	}

	for _, f := range localFolders {
		if ctx.Err() != nil {
			report.Cancelled = true
			return report, archiveerr.New(archiveerr.KindCancelled, "sync interrupted before folder "+f.LocalPath, ctx.Err())
		}

		folderReport, err := e.syncFolder(ctx, f)
		report.Archived += folderReport.Archived
		report.Skipped += folderReport.Skipped
		report.Quarantined += folderReport.Quarantined
		report.Moved += folderReport.Moved
		report.Errors += folderReport.Errors
		report.FoldersProcessed++

		if err != nil {
			if archiveerr.Is(err, archiveerr.KindCancelled) {
				report.Cancelled = true
			}

			return report, err
		}
	}

	if e.opts.DryRun {
		return report, nil
	}

	now := archivedb.NowNano()
	syncState.LastSyncTime = &now

	if err := e.store.UpsertSyncState(ctx, syncState); err != nil {
		return report, err
	}

	return report, nil
}

func (e *Engine) resolveMailbox(ctx context.Context) (string, error) {
	if e.opts.Mailbox != "" {
		return e.opts.Mailbox, nil
	}

	mailboxID, err := e.provider.CurrentUserMailbox(ctx)
	if err != nil {
		return "", err
	}

	return mailboxID, nil
}

func (e *Engine) loadOrCreateSyncState(ctx context.Context, mailboxID string) (*archivedb.SyncState, error) {
	st, err := e.store.GetSyncState(ctx, mailboxID)
	if archiveerr.Is(err, archiveerr.KindNotFound) {
		return &archivedb.SyncState{MailboxID: mailboxID}, nil
	}

	if err != nil {
		return nil, err
	}

	return st, nil
}

func (e *Engine) enumerateFolders(ctx context.Context, mailboxID string) ([]mailgraph.Folder, error) {
	folders, err := e.provider.ListFolders(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("enumerated folders", slog.Int("count", len(folders)))

	return folders, nil
}

func (e *Engine) filterExcluded(folders []mailgraph.Folder) []mailgraph.Folder {
	survivors := make([]mailgraph.Folder, 0, len(folders))

	for _, f := range folders {
		if e.matcher.IsExcluded(f.FullPath) {
			e.logger.Debug("excluding folder", slog.String("path", f.FullPath))
			continue
		}

		if !e.inScope(f.FullPath) {
			continue
		}

		survivors = append(survivors, f)
	}

	return survivors
}

// inScope reports whether path falls under opts.FolderScope, the `--folder`
// flag's single-subtree restriction. An empty scope leaves every folder in
// play.
func (e *Engine) inScope(path string) bool {
	if e.opts.FolderScope == "" {
		return true
	}

	return path == e.opts.FolderScope || strings.HasPrefix(path, e.opts.FolderScope+"/")
}

// persistFolderMappings upserts each surviving remote folder into the
// Folder table, carrying forward any already-stored delta_token/
// last_sync_time (archivedb.UpsertFolder's job), and returns the resulting
// local rows. Skipped entirely in dry-run mode — the remote folders are
// still returned as synthetic rows so syncFolder can walk them without a
// stored cursor.
func (e *Engine) persistFolderMappings(ctx context.Context, folders []mailgraph.Folder) ([]*archivedb.Folder, error) {
	out := make([]*archivedb.Folder, 0, len(folders))

	for _, f := range folders {
		local := &archivedb.Folder{
			GraphID:         f.ID,
			ParentFolderID:  f.ParentID,
			LocalPath:       f.FullPath,
			DisplayName:     f.DisplayName,
			TotalItemCount:  f.TotalItemCount,
			UnreadItemCount: f.UnreadItemCount,
		}

		if e.opts.DryRun {
			out = append(out, local)
			continue
		}

		if err := e.store.UpsertFolder(ctx, local); err != nil {
			return nil, err
		}

		stored, err := e.store.GetFolderByGraphID(ctx, f.ID)
		if err != nil {
			return nil, err
		}

		out = append(out, stored)
	}

	return out, nil
}
