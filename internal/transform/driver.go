package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mailkeep/mailkeep/internal/archivedb"
)

// Run renders kind for every message MessagesNeedingTransformation selects,
// per spec.md §4.8: query the selection set, invoke the renderer, write
// output, record the Transformation row. A message whose render fails is
// logged and counted but does not stop the run.
func (d *Driver) Run(ctx context.Context, kind Kind) (Report, error) {
	return d.run(ctx, kind, false)
}

// RunForced renders kind for every non-quarantined message regardless of its
// recorded config version, for the `transform --force` CLI flag.
func (d *Driver) RunForced(ctx context.Context, kind Kind) (Report, error) {
	return d.run(ctx, kind, true)
}

func (d *Driver) run(ctx context.Context, kind Kind, force bool) (Report, error) {
	report := Report{Kind: kind}

	renderer, ok := d.renderers[kind]
	if !ok {
		return report, fmt.Errorf("transform: unknown kind %q", kind)
	}

	var graphIDs []string

	var err error

	if force {
		graphIDs, err = d.store.AllMessageGraphIDs(ctx)
	} else {
		graphIDs, err = d.store.MessagesNeedingTransformation(ctx, string(kind), d.configVersion)
	}

	if err != nil {
		return report, err
	}

	report.Selected = len(graphIDs)

	for _, graphID := range graphIDs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if err := d.renderOne(ctx, renderer, kind, graphID); err != nil {
			d.logger.Warn("transformation failed",
				slog.String("kind", string(kind)), slog.String("message_id", graphID), slog.String("error", err.Error()))
			report.Errors++

			continue
		}

		report.Rendered++
	}

	return report, nil
}

// RunAll renders every Kind the resolved configuration enables, in a stable
// order, and returns one Report per Kind.
func (d *Driver) RunAll(ctx context.Context) ([]Report, error) {
	return d.runAll(ctx, false)
}

// RunAllForced is RunAll's --force counterpart.
func (d *Driver) RunAllForced(ctx context.Context) ([]Report, error) {
	return d.runAll(ctx, true)
}

func (d *Driver) runAll(ctx context.Context, force bool) ([]Report, error) {
	var reports []Report

	for _, kind := range d.enabledKinds() {
		report, err := d.run(ctx, kind, force)
		reports = append(reports, report)

		if err != nil {
			return reports, err
		}
	}

	return reports, nil
}

// RenderMessage runs every enabled Kind against one already-known message
// directly, skipping the MessagesNeedingTransformation selection query.
// This is what the `sync` command's inline transform flags call from the
// sync engine's OnMessageArchived hook, where the message is already in
// hand and a fresh selection query per archived message would be wasted
// work.
func (d *Driver) RenderMessage(ctx context.Context, graphID string) error {
	for _, kind := range d.enabledKinds() {
		renderer := d.renderers[kind]

		if err := d.renderOne(ctx, renderer, kind, graphID); err != nil {
			d.logger.Warn("inline transformation failed",
				slog.String("kind", string(kind)), slog.String("message_id", graphID), slog.String("error", err.Error()))
		}
	}

	return nil
}

func (d *Driver) renderOne(ctx context.Context, renderer Renderer, kind Kind, graphID string) error {
	msg, err := d.store.GetMessageByGraphID(ctx, graphID)
	if err != nil {
		return err
	}

	mime, err := d.readMIME(msg.LocalPath)
	if err != nil {
		return err
	}

	result, err := renderer.Render(ctx, msg, mime, d.outputRoot)
	if err != nil {
		return err
	}

	if err := d.persistParts(ctx, msg.GraphID, result.Parts); err != nil {
		return err
	}

	return d.store.UpsertTransformation(ctx, &archivedb.Transformation{
		MessageID:          msg.GraphID,
		TransformationType: string(kind),
		ConfigVersion:      d.configVersion,
		OutputPath:         result.OutputPath,
		OutputSizeBytes:    result.SizeBytes,
	})
}

// persistParts records one Attachment row per part the attachments renderer
// reported, plus a ZipExtraction row (and one ZipExtractedFile row per file
// actually written) for each ZIP part — whether or not extraction was
// permitted, per spec.md §3's Attachment/ZipExtraction/ZipExtractedFile
// entities.
func (d *Driver) persistParts(ctx context.Context, graphID string, parts []PartResult) error {
	for _, p := range parts {
		attachment := &archivedb.Attachment{
			MessageID:   graphID,
			Filename:    p.Filename,
			FilePath:    p.FilePath,
			SizeBytes:   p.SizeBytes,
			ContentType: p.ContentType,
			ContentID:   p.ContentID,
			IsInline:    p.IsInline,
			Skipped:     p.Skipped,
			SkipReason:  p.SkipReason,
		}

		if !p.Skipped {
			now := archivedb.NowNano()
			attachment.ExtractedAt = &now
		}

		attachmentID, err := d.store.InsertAttachment(ctx, attachment)
		if err != nil {
			return err
		}

		if p.Zip == nil {
			continue
		}

		zip := &archivedb.ZipExtraction{
			MessageID:              graphID,
			AttachmentID:           attachmentID,
			FileCount:              int64(p.Zip.Analysis.FileCount),
			TotalUncompressedBytes: int64(p.Zip.Analysis.TotalUncompressed),
			HasExecutables:         p.Zip.Analysis.HasExecutables,
			HasUnsafePaths:         p.Zip.Analysis.HasUnsafePaths,
			IsEncrypted:            p.Zip.Analysis.IsEncrypted,
			CanExtract:             p.Zip.Analysis.CanExtract,
			SkipReason:             string(p.Zip.Analysis.SkipReason),
		}

		if err := d.store.InsertZipExtraction(ctx, zip); err != nil {
			return err
		}

		for _, f := range p.Zip.ExtractedFiles {
			if err := d.store.InsertZipExtractedFile(ctx, &archivedb.ZipExtractedFile{
				ZipExtractionID: zip.ID,
				SourceEntry:     f.SourceEntry,
				DestPath:        f.DestPath,
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *Driver) readMIME(localPath string) ([]byte, error) {
	rc, err := d.eml.OpenRead(localPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("reading %s", localPath), err)
	}

	return data, nil
}
