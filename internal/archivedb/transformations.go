package archivedb

import (
	"context"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

const (
	sqlUpsertTransformation = `INSERT INTO transformations
		(message_id, transformation_type, applied_at, config_version, output_path, output_size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, transformation_type) DO UPDATE SET
			applied_at        = excluded.applied_at,
			config_version    = excluded.config_version,
			output_path       = excluded.output_path,
			output_size_bytes = excluded.output_size_bytes`

	// sqlMessagesNeedingTransformation implements the set
	// {m : no row for (m, type)} ∪ {m : row exists but config_version != current},
	// excluding quarantined messages, per spec.md §8 testable property 10.
	sqlMessagesNeedingTransformation = `SELECT graph_id FROM messages
		WHERE quarantined_at IS NULL
		AND graph_id NOT IN (
			SELECT message_id FROM transformations
			WHERE transformation_type = ? AND config_version = ?
		)`
)

func (s *Store) prepareTransformationStmts(ctx context.Context) error {
	var err error

	if s.transformationStmts.upsert, err = s.prepare(ctx, sqlUpsertTransformation); err != nil {
		return err
	}

	if s.transformationStmts.needingTransformation, err = s.prepare(ctx, sqlMessagesNeedingTransformation); err != nil {
		return err
	}

	return nil
}

// UpsertTransformation records that transformationType has been applied to
// messageID at configVersion, producing outputPath.
func (s *Store) UpsertTransformation(ctx context.Context, t *Transformation) error {
	if t.AppliedAt == 0 {
		t.AppliedAt = NowNano()
	}

	_, err := s.transformationStmts.upsert.ExecContext(ctx,
		t.MessageID, t.TransformationType, t.AppliedAt, t.ConfigVersion,
		t.OutputPath, t.OutputSizeBytes,
	)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "upserting transformation", err)
	}

	return nil
}

// MessagesNeedingTransformation returns the graph IDs of every
// non-quarantined message that either has never had transformationType
// applied, or had it applied at a stale configVersion. Quarantined messages
// are permanently excluded: they never reach the Transformation Driver.
func (s *Store) MessagesNeedingTransformation(ctx context.Context, transformationType, configVersion string) ([]string, error) {
	rows, err := s.transformationStmts.needingTransformation.QueryContext(ctx, transformationType, configVersion)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "querying messages needing transformation", err)
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
