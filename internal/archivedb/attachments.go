package archivedb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

const (
	sqlInsertAttachment = `INSERT INTO attachments
		(message_id, filename, file_path, size_bytes, content_type, content_id,
		 is_inline, skipped, skip_reason, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertZipExtraction = `INSERT INTO zip_extractions
		(id, message_id, attachment_id, file_count, total_uncompressed_bytes,
		 has_executables, has_unsafe_paths, is_encrypted, can_extract, skip_reason, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertZipExtractedFile = `INSERT INTO zip_extracted_files
		(zip_extraction_id, source_entry, dest_path)
		VALUES (?, ?, ?)`

	attachmentColumns = `id, message_id, filename, file_path, size_bytes,
		content_type, content_id, is_inline, skipped, skip_reason, extracted_at`

	sqlListAttachmentsByMessage = `SELECT ` + attachmentColumns + ` FROM attachments WHERE message_id = ?`
)

func (s *Store) prepareAttachmentStmts(ctx context.Context) error {
	var err error

	if s.attachmentStmts.insert, err = s.prepare(ctx, sqlInsertAttachment); err != nil {
		return err
	}

	if s.attachmentStmts.insertZipExtraction, err = s.prepare(ctx, sqlInsertZipExtraction); err != nil {
		return err
	}

	if s.attachmentStmts.insertZipExtractedFile, err = s.prepare(ctx, sqlInsertZipExtractedFile); err != nil {
		return err
	}

	if s.attachmentStmts.listByMessage, err = s.prepare(ctx, sqlListAttachmentsByMessage); err != nil {
		return err
	}

	return nil
}

// InsertAttachment records one attachment (extracted or explicitly
// skipped) belonging to messageID, returning the assigned row ID.
func (s *Store) InsertAttachment(ctx context.Context, a *Attachment) (int64, error) {
	result, err := s.attachmentStmts.insert.ExecContext(ctx,
		a.MessageID, a.Filename, nullableString(a.FilePath), a.SizeBytes,
		nullableString(a.ContentType), nullableString(a.ContentID), a.IsInline,
		a.Skipped, nullableString(a.SkipReason), a.ExtractedAt,
	)
	if err != nil {
		return 0, archiveerr.New(archiveerr.KindSchema, "inserting attachment", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, archiveerr.New(archiveerr.KindSchema, "reading attachment id", err)
	}

	return id, nil
}

// ListAttachmentsByMessage returns every attachment row belonging to a
// message, in insertion order.
func (s *Store) ListAttachmentsByMessage(ctx context.Context, messageID string) ([]*Attachment, error) {
	rows, err := s.attachmentStmts.listByMessage.QueryContext(ctx, messageID)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "listing attachments", err)
	}
	defer rows.Close()

	var out []*Attachment

	for rows.Next() {
		a := &Attachment{}

		var filePath, contentType, contentID, skipReason sql.NullString

		var extractedAt sql.NullInt64

		err := rows.Scan(
			&a.ID, &a.MessageID, &a.Filename, &filePath, &a.SizeBytes,
			&contentType, &contentID, &a.IsInline, &a.Skipped, &skipReason, &extractedAt,
		)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindSchema, "scanning attachment row", err)
		}

		a.FilePath = filePath.String
		a.ContentType = contentType.String
		a.ContentID = contentID.String
		a.SkipReason = skipReason.String

		if extractedAt.Valid {
			a.ExtractedAt = &extractedAt.Int64
		}

		out = append(out, a)
	}

	return out, rows.Err()
}

// InsertZipExtraction records the analysis (and, if permitted, extraction)
// outcome for one zip attachment, assigning it a synthetic UUID primary
// key since, unlike messages and folders, a ZIP analysis has no natural
// provider-assigned identifier.
func (s *Store) InsertZipExtraction(ctx context.Context, z *ZipExtraction) error {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}

	if z.AnalyzedAt == 0 {
		z.AnalyzedAt = NowNano()
	}

	_, err := s.attachmentStmts.insertZipExtraction.ExecContext(ctx,
		z.ID, z.MessageID, z.AttachmentID, z.FileCount, z.TotalUncompressedBytes,
		z.HasExecutables, z.HasUnsafePaths, z.IsEncrypted, z.CanExtract,
		nullableString(z.SkipReason), z.AnalyzedAt,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "inserting zip extraction", err)
	}

	return nil
}

// InsertZipExtractedFile records one file written out of a ZIP extraction.
func (s *Store) InsertZipExtractedFile(ctx context.Context, f *ZipExtractedFile) error {
	_, err := s.attachmentStmts.insertZipExtractedFile.ExecContext(ctx,
		f.ZipExtractionID, f.SourceEntry, f.DestPath,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "inserting zip extracted file", err)
	}

	return nil
}
