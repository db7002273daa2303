// Package transform implements the Transformation Driver: it selects
// messages needing a derived artifact, invokes the renderer for that
// artifact type, routes any extracted attachments through the security
// screen, and records the result so a later run with the same
// configuration skips already-current work.
package transform

import (
	"context"
	"io"
	"log/slog"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/mailkeepconfig"
	"github.com/mailkeep/mailkeep/internal/security"
)

// Kind names one derivative artifact type, matching the `transformation_type`
// column and the `--only` CLI flag's accepted values.
type Kind string

const (
	KindHTML        Kind = "html"
	KindMarkdown    Kind = "markdown"
	KindAttachments Kind = "attachments"
)

// EMLReader is the read side of EML Storage the driver depends on: the
// canonical message bytes are the only input, network is never touched.
type EMLReader interface {
	OpenRead(relativePath string) (io.ReadCloser, error)
}

// Report summarizes one driver run for one Kind.
type Report struct {
	Kind     Kind
	Selected int
	Rendered int
	Skipped  int
	Errors   int
}

// Driver runs the Transformation Driver described in spec.md §4.8.
type Driver struct {
	store      *archivedb.Store
	eml        EMLReader
	outputRoot string
	cfg        mailkeepconfig.TransformationsConfig
	secOpts    security.Options
	logger     *slog.Logger

	configVersion string
	renderers     map[Kind]Renderer
}

// Renderer produces one artifact type from a canonical message and its raw
// MIME bytes, writing output under root and returning the path(s) written
// relative to the archive root plus their combined size.
type Renderer interface {
	Render(ctx context.Context, msg *archivedb.Message, mime []byte, root string) (RenderResult, error)
}

// RenderResult is one renderer invocation's output, recorded verbatim into
// the returned Transformation row (OutputPath is relative to the archive
// root, matching Message.LocalPath's convention). Parts is populated only
// by the attachments renderer, one entry per attachment/inline part
// encountered, so the driver can persist the per-attachment (and, for ZIP
// parts, per-extraction) rows spec.md §3/§4.3/§4.4 describe.
type RenderResult struct {
	OutputPath string
	SizeBytes  int64
	Parts      []PartResult
}

// PartResult describes one attachment or inline part the attachments
// renderer encountered, whether or not it was written to disk.
type PartResult struct {
	Filename    string
	FilePath    string
	SizeBytes   int64
	ContentType string
	ContentID   string
	IsInline    bool
	Skipped     bool
	SkipReason  string
	Zip         *ZipPartResult
}

// ZipPartResult carries the Security Screen's analysis of a ZIP part, plus
// the files actually extracted if extraction was permitted.
type ZipPartResult struct {
	Analysis       security.Analysis
	ExtractedFiles []security.ExtractedFile
}

// New builds a Driver with the concrete renderers this repository ships:
// html (enmime decode + bluemonday sanitize), markdown (reuses enmime's
// text part), and attachments (enmime attachment parts through the
// Security Screen). outputRoot is the archive root; artifacts land under
// outputRoot/transformed/....
func New(store *archivedb.Store, eml EMLReader, outputRoot string, cfg mailkeepconfig.TransformationsConfig, secOpts security.Options, logger *slog.Logger) *Driver {
	d := &Driver{
		store:         store,
		eml:           eml,
		outputRoot:    outputRoot,
		cfg:           cfg,
		secOpts:       secOpts,
		logger:        logger,
		configVersion: fingerprint(cfg, secOpts),
	}

	d.renderers = map[Kind]Renderer{
		KindHTML:        &htmlRenderer{opts: cfg.HTMLOptions},
		KindMarkdown:    &markdownRenderer{},
		KindAttachments: &attachmentsRenderer{opts: cfg.AttachmentOptions, secOpts: secOpts},
	}

	return d
}

// enabledKinds returns the Kinds the resolved configuration turns on, in a
// stable order (html, markdown, attachments) so reports are reproducible.
func (d *Driver) enabledKinds() []Kind {
	var kinds []Kind

	if d.cfg.GenerateHTML {
		kinds = append(kinds, KindHTML)
	}

	if d.cfg.GenerateMarkdown {
		kinds = append(kinds, KindMarkdown)
	}

	if d.cfg.ExtractAttachments {
		kinds = append(kinds, KindAttachments)
	}

	return kinds
}
