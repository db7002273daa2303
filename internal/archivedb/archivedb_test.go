package archivedb

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()

	s, err := New(ctx, ":memory:", testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	return s
}

func TestMigrationsCreateAllTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tables := []string{
		"sync_state", "folders", "messages", "transformations",
		"attachments", "zip_extractions", "zip_extracted_files", "folder_sync_progress",
	}

	for _, table := range tables {
		var name string

		err := s.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after migration: %v", table, err)
		}
	}
}

func TestUpsertFolderInsertThenUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := &Folder{GraphID: "g1", LocalPath: "Inbox", DisplayName: "Inbox", DeltaToken: "tok1"}
	if err := s.UpsertFolder(ctx, f); err != nil {
		t.Fatalf("UpsertFolder() error = %v", err)
	}

	f.UnreadItemCount = 5
	if err := s.UpsertFolder(ctx, f); err != nil {
		t.Fatalf("UpsertFolder() update error = %v", err)
	}

	got, err := s.GetFolderByGraphID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetFolderByGraphID() error = %v", err)
	}

	if got.UnreadItemCount != 5 {
		t.Errorf("UnreadItemCount = %d, want 5", got.UnreadItemCount)
	}
}

func TestUpsertFolderCarriesDeltaTokenAcrossGraphIDChurn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	original := &Folder{GraphID: "g1", LocalPath: "Inbox", DisplayName: "Inbox", DeltaToken: "original-token"}
	if err := s.UpsertFolder(ctx, original); err != nil {
		t.Fatalf("UpsertFolder() error = %v", err)
	}

	recreated := &Folder{GraphID: "g2", LocalPath: "Inbox", DisplayName: "Inbox"}
	if err := s.UpsertFolder(ctx, recreated); err != nil {
		t.Fatalf("UpsertFolder() recreate error = %v", err)
	}

	if _, err := s.GetFolderByGraphID(ctx, "g1"); !archiveerr.Is(err, archiveerr.KindNotFound) {
		t.Fatalf("expected old folder row to be retired, err = %v", err)
	}

	got, err := s.GetFolderByGraphID(ctx, "g2")
	if err != nil {
		t.Fatalf("GetFolderByGraphID() error = %v", err)
	}

	if got.DeltaToken != "original-token" {
		t.Errorf("DeltaToken = %q, want carried-over %q", got.DeltaToken, "original-token")
	}
}

func TestUpsertMessageIsIdempotentOnContentFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &Message{GraphID: "g1", ImmutableID: "imm1", LocalPath: "eml/2026/01/a.eml", FolderPath: "Inbox", Subject: "hello"}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("UpsertMessage() error = %v", err)
	}

	moved := &Message{GraphID: "g1", ImmutableID: "imm1", LocalPath: "eml/2026/01/a.eml", FolderPath: "Archive", Subject: "ignored on conflict"}
	if err := s.UpsertMessage(ctx, moved); err != nil {
		t.Fatalf("UpsertMessage() second call error = %v", err)
	}

	got, err := s.GetMessageByImmutableID(ctx, "imm1")
	if err != nil {
		t.Fatalf("GetMessageByImmutableID() error = %v", err)
	}

	if got.FolderPath != "Archive" {
		t.Errorf("FolderPath = %q, want updated %q", got.FolderPath, "Archive")
	}

	if got.Subject != "hello" {
		t.Errorf("Subject = %q, want original preserved %q", got.Subject, "hello")
	}
}

func TestQuarantineMessageSetsFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &Message{GraphID: "g1", ImmutableID: "imm1", LocalPath: "eml/2026/01/a.eml", FolderPath: "Inbox"}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("UpsertMessage() error = %v", err)
	}

	if err := s.QuarantineMessage(ctx, "g1", "_Quarantine/eml/2026/01/a.eml", "blocked extension"); err != nil {
		t.Fatalf("QuarantineMessage() error = %v", err)
	}

	got, err := s.GetMessageByGraphID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetMessageByGraphID() error = %v", err)
	}

	if got.QuarantinedAt == nil {
		t.Fatal("expected QuarantinedAt to be set")
	}

	if got.QuarantineReason != "blocked extension" {
		t.Errorf("QuarantineReason = %q, want %q", got.QuarantineReason, "blocked extension")
	}
}

func TestMessagesNeedingTransformationExcludesQuarantinedAndUpToDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, m := range []*Message{
		{GraphID: "g1", ImmutableID: "imm1", LocalPath: "a", FolderPath: "Inbox"},
		{GraphID: "g2", ImmutableID: "imm2", LocalPath: "b", FolderPath: "Inbox"},
		{GraphID: "g3", ImmutableID: "imm3", LocalPath: "c", FolderPath: "Inbox"},
	} {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("UpsertMessage() error = %v", err)
		}
	}

	if err := s.QuarantineMessage(ctx, "g3", "_Quarantine/c", "bad"); err != nil {
		t.Fatalf("QuarantineMessage() error = %v", err)
	}

	if err := s.UpsertTransformation(ctx, &Transformation{
		MessageID: "g2", TransformationType: "html", ConfigVersion: "v1", OutputPath: "transformed/b.html",
	}); err != nil {
		t.Fatalf("UpsertTransformation() error = %v", err)
	}

	needing, err := s.MessagesNeedingTransformation(ctx, "html", "v1")
	if err != nil {
		t.Fatalf("MessagesNeedingTransformation() error = %v", err)
	}

	if len(needing) != 1 || needing[0] != "g1" {
		t.Fatalf("MessagesNeedingTransformation() = %v, want [g1]", needing)
	}
}

func TestAllMessageGraphIDsExcludesQuarantinedIgnoresTransformationHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, m := range []*Message{
		{GraphID: "g1", ImmutableID: "imm1", LocalPath: "a", FolderPath: "Inbox"},
		{GraphID: "g2", ImmutableID: "imm2", LocalPath: "b", FolderPath: "Inbox"},
		{GraphID: "g3", ImmutableID: "imm3", LocalPath: "c", FolderPath: "Inbox"},
	} {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("UpsertMessage() error = %v", err)
		}
	}

	if err := s.QuarantineMessage(ctx, "g3", "_Quarantine/c", "bad"); err != nil {
		t.Fatalf("QuarantineMessage() error = %v", err)
	}

	if err := s.UpsertTransformation(ctx, &Transformation{
		MessageID: "g1", TransformationType: "html", ConfigVersion: "current", OutputPath: "transformed/a.html",
	}); err != nil {
		t.Fatalf("UpsertTransformation() error = %v", err)
	}

	ids, err := s.AllMessageGraphIDs(ctx)
	if err != nil {
		t.Fatalf("AllMessageGraphIDs() error = %v", err)
	}

	if len(ids) != 2 {
		t.Fatalf("AllMessageGraphIDs() = %v, want 2 non-quarantined ids regardless of transformation history", ids)
	}
}

func TestMessagesNeedingTransformationPicksUpStaleConfigVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, &Message{GraphID: "g1", ImmutableID: "imm1", LocalPath: "a", FolderPath: "Inbox"}); err != nil {
		t.Fatalf("UpsertMessage() error = %v", err)
	}

	if err := s.UpsertTransformation(ctx, &Transformation{
		MessageID: "g1", TransformationType: "html", ConfigVersion: "v1", OutputPath: "transformed/a.html",
	}); err != nil {
		t.Fatalf("UpsertTransformation() error = %v", err)
	}

	needing, err := s.MessagesNeedingTransformation(ctx, "html", "v2")
	if err != nil {
		t.Fatalf("MessagesNeedingTransformation() error = %v", err)
	}

	if len(needing) != 1 || needing[0] != "g1" {
		t.Fatalf("MessagesNeedingTransformation() = %v, want [g1] under stale config_version", needing)
	}
}

func TestFolderSyncProgressLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertFolder(ctx, &Folder{GraphID: "g1", LocalPath: "Inbox", DisplayName: "Inbox"}); err != nil {
		t.Fatalf("UpsertFolder() error = %v", err)
	}

	if _, err := s.GetFolderSyncProgress(ctx, "g1"); !archiveerr.Is(err, archiveerr.KindNotFound) {
		t.Fatalf("expected KindNotFound before any checkpoint, got %v", err)
	}

	p := &FolderSyncProgress{FolderID: "g1", PendingNextLink: "next-page-token", MessagesProcessed: 50}
	if err := s.UpsertFolderSyncProgress(ctx, p); err != nil {
		t.Fatalf("UpsertFolderSyncProgress() error = %v", err)
	}

	got, err := s.GetFolderSyncProgress(ctx, "g1")
	if err != nil {
		t.Fatalf("GetFolderSyncProgress() error = %v", err)
	}

	if got.PendingNextLink != "next-page-token" || got.MessagesProcessed != 50 {
		t.Fatalf("GetFolderSyncProgress() = %+v, unexpected", got)
	}

	if err := s.DeleteFolderSyncProgress(ctx, "g1"); err != nil {
		t.Fatalf("DeleteFolderSyncProgress() error = %v", err)
	}

	if _, err := s.GetFolderSyncProgress(ctx, "g1"); !archiveerr.Is(err, archiveerr.KindNotFound) {
		t.Fatalf("expected KindNotFound after deletion, got %v", err)
	}
}

func TestTxCheckpointCommitsProgressAndMessageTogether(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertFolder(ctx, &Folder{GraphID: "g1", LocalPath: "Inbox", DisplayName: "Inbox"}); err != nil {
		t.Fatalf("UpsertFolder() error = %v", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}

	if err := tx.UpsertFolderSyncProgress(ctx, &FolderSyncProgress{FolderID: "g1", MessagesProcessed: 10}); err != nil {
		t.Fatalf("tx.UpsertFolderSyncProgress() error = %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := s.GetFolderSyncProgress(ctx, "g1")
	if err != nil {
		t.Fatalf("GetFolderSyncProgress() error = %v", err)
	}

	if got.MessagesProcessed != 10 {
		t.Errorf("MessagesProcessed = %d, want 10", got.MessagesProcessed)
	}
}

func TestTxRollbackDiscardsProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertFolder(ctx, &Folder{GraphID: "g1", LocalPath: "Inbox", DisplayName: "Inbox"}); err != nil {
		t.Fatalf("UpsertFolder() error = %v", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}

	if err := tx.UpsertFolderSyncProgress(ctx, &FolderSyncProgress{FolderID: "g1", MessagesProcessed: 99}); err != nil {
		t.Fatalf("tx.UpsertFolderSyncProgress() error = %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := s.GetFolderSyncProgress(ctx, "g1"); !archiveerr.Is(err, archiveerr.KindNotFound) {
		t.Fatalf("expected rolled-back checkpoint to be absent, got %v", err)
	}
}

func TestCascadeDeleteRemovesDependentRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, &Message{GraphID: "g1", ImmutableID: "imm1", LocalPath: "a", FolderPath: "Inbox"}); err != nil {
		t.Fatalf("UpsertMessage() error = %v", err)
	}

	attID, err := s.InsertAttachment(ctx, &Attachment{MessageID: "g1", Filename: "report.zip", SizeBytes: 100})
	if err != nil {
		t.Fatalf("InsertAttachment() error = %v", err)
	}

	if err := s.InsertZipExtraction(ctx, &ZipExtraction{MessageID: "g1", AttachmentID: attID, FileCount: 1, CanExtract: true}); err != nil {
		t.Fatalf("InsertZipExtraction() error = %v", err)
	}

	if err := s.UpsertTransformation(ctx, &Transformation{MessageID: "g1", TransformationType: "html", ConfigVersion: "v1", OutputPath: "x"}); err != nil {
		t.Fatalf("UpsertTransformation() error = %v", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE graph_id = ?", "g1"); err != nil {
		t.Fatalf("deleting message: %v", err)
	}

	var count int

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attachments WHERE message_id = ?", "g1").Scan(&count); err != nil {
		t.Fatalf("counting attachments: %v", err)
	}

	if count != 0 {
		t.Errorf("attachments not cascade-deleted, count = %d", count)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transformations WHERE message_id = ?", "g1").Scan(&count); err != nil {
		t.Fatalf("counting transformations: %v", err)
	}

	if count != 0 {
		t.Errorf("transformations not cascade-deleted, count = %d", count)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM zip_extractions WHERE message_id = ?", "g1").Scan(&count); err != nil {
		t.Fatalf("counting zip extractions: %v", err)
	}

	if count != 0 {
		t.Errorf("zip_extractions not cascade-deleted, count = %d", count)
	}
}

func TestSyncStateUpsertOverwritesDeltaToken(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertSyncState(ctx, &SyncState{MailboxID: "me", DeltaToken: "token-a"}); err != nil {
		t.Fatalf("UpsertSyncState() error = %v", err)
	}

	if err := s.UpsertSyncState(ctx, &SyncState{MailboxID: "me", DeltaToken: "token-b"}); err != nil {
		t.Fatalf("UpsertSyncState() second call error = %v", err)
	}

	got, err := s.GetSyncState(ctx, "me")
	if err != nil {
		t.Fatalf("GetSyncState() error = %v", err)
	}

	if got.DeltaToken != "token-b" {
		t.Errorf("DeltaToken = %q, want token-b to fully replace token-a", got.DeltaToken)
	}
}

func TestGetSyncStateNotFoundBeforeFirstSync(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSyncState(ctx, "never-synced"); !archiveerr.Is(err, archiveerr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}
