package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/mailkeepconfig"
	"github.com/mailkeep/mailkeep/internal/sanitize"
	"github.com/mailkeep/mailkeep/internal/security"
)

// attachmentsRenderer walks enmime's attachment and inline parts, routes
// each through the Security Screen (ZIP analysis/extraction, executable
// blocking), and writes survivors under transformed/attachments/<message>/.
type attachmentsRenderer struct {
	opts    mailkeepconfig.AttachmentOptions
	secOpts security.Options
}

func (r *attachmentsRenderer) Render(ctx context.Context, msg *archivedb.Message, mime []byte, root string) (RenderResult, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(mime))
	if err != nil {
		return RenderResult{}, fmt.Errorf("decoding mime for %s: %w", msg.GraphID, err)
	}

	msgDir := strings.TrimSuffix(filepath.Base(msg.LocalPath), filepath.Ext(msg.LocalPath))
	destDir := filepath.Join("transformed", "attachments", msgDir)

	var totalSize int64

	var results []PartResult

	type taggedPart struct {
		part     *enmime.Part
		isInline bool
	}

	var all []taggedPart
	for _, p := range env.Attachments {
		all = append(all, taggedPart{p, false})
	}

	for _, p := range env.Inlines {
		all = append(all, taggedPart{p, true})
	}

	for _, tp := range all {
		if tp.part.FileName == "" {
			continue
		}

		pr, err := r.writePart(tp.part, root, destDir, tp.isInline)
		if err != nil {
			return RenderResult{}, fmt.Errorf("writing attachment %q for %s: %w", tp.part.FileName, msg.GraphID, err)
		}

		totalSize += pr.SizeBytes
		results = append(results, pr)
	}

	return RenderResult{OutputPath: filepath.ToSlash(destDir), SizeBytes: totalSize, Parts: results}, nil
}

func (r *attachmentsRenderer) writePart(part *enmime.Part, root, destDir string, isInline bool) (PartResult, error) {
	base := PartResult{
		Filename:    part.FileName,
		ContentType: part.ContentType,
		ContentID:   part.ContentID,
		IsInline:    isInline,
	}

	if strings.EqualFold(filepath.Ext(part.FileName), ".zip") {
		return r.writeZipPart(part, root, destDir, base)
	}

	if r.opts.SkipExecutables && security.IsBlockedExtension(part.FileName) {
		base.Skipped = true
		base.SkipReason = "skip_executables"

		return base, nil
	}

	if security.BlocksDirectExecutable(part.FileName, r.secOpts) {
		base.Skipped = true
		base.SkipReason = "block_executables_direct"

		return base, nil
	}

	relPath := filepath.ToSlash(filepath.Join(destDir, sanitize.Component(part.FileName)))

	if err := writeUnderRoot(root, relPath, part.Content); err != nil {
		return PartResult{}, err
	}

	base.FilePath = relPath
	base.SizeBytes = int64(len(part.Content))

	return base, nil
}

// writeZipPart spools a ZIP attachment to a temp file so internal/security's
// file-based ZIP analysis/extraction can run unmodified, then extracts it
// under destDir via the Security Screen.
func (r *attachmentsRenderer) writeZipPart(part *enmime.Part, root, destDir string, base PartResult) (PartResult, error) {
	tempZip := filepath.Join(os.TempDir(), "mailkeep-attachment-"+uuid.NewString()+".zip")

	if err := os.WriteFile(tempZip, part.Content, 0o600); err != nil {
		return PartResult{}, fmt.Errorf("spooling zip attachment: %w", err)
	}
	defer os.Remove(tempZip)

	extractRelDir := filepath.Join(destDir, strings.TrimSuffix(part.FileName, filepath.Ext(part.FileName)))
	extractRoot := filepath.Join(root, filepath.FromSlash(extractRelDir))

	result, err := security.Extract(tempZip, extractRoot, r.secOpts)
	if err != nil {
		return PartResult{}, err
	}

	base.Zip = &ZipPartResult{Analysis: result.Analysis, ExtractedFiles: result.ExtractedFiles}

	if !result.Analysis.CanExtract {
		base.Skipped = true
		base.SkipReason = string(result.Analysis.SkipReason)

		return base, nil
	}

	base.FilePath = filepath.ToSlash(extractRelDir)
	base.SizeBytes = int64(result.Analysis.TotalUncompressed)

	return base, nil
}
