package transform

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"regexp"

	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/mailkeepconfig"
)

// htmlRenderer decodes the canonical MIME message with enmime and sanitizes
// its HTML body with bluemonday before writing it under transformed/html.
type htmlRenderer struct {
	opts mailkeepconfig.HTMLOptions
}

func (r *htmlRenderer) Render(ctx context.Context, msg *archivedb.Message, mime []byte, root string) (RenderResult, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(mime))
	if err != nil {
		return RenderResult{}, fmt.Errorf("decoding mime for %s: %w", msg.GraphID, err)
	}

	policy := bluemonday.UGCPolicy()
	if r.opts.InlineStyles {
		policy.AllowStyling()
	}

	if !r.opts.StripExternalImages {
		policy.AllowImages()
	}

	body := env.HTML
	if body == "" {
		// No HTML part; fall back to the text part wrapped as preformatted
		// text so the renderer still produces a viewable document.
		body = "<pre>" + html.EscapeString(env.Text) + "</pre>"
	}

	if r.opts.StripExternalImages {
		// UGCPolicy already allows <img>, so images whose src is an http(s)
		// or protocol-relative URL are removed before sanitizing.
		body = regexp.MustCompile(`(?is)<img\b[^>]*?\bsrc\s*=\s*["']?\s*(?:https?:)?//[^>]*>`).ReplaceAllString(body, "")
	}

	sanitized := policy.Sanitize(body)

	var buf bytes.Buffer

	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(env.GetHeader("Subject")))
	buf.WriteString("</title></head><body>\n")
	writeHeaderBlock(&buf, env, r.opts)
	buf.WriteString("\n<hr>\n")
	buf.WriteString(sanitized)
	buf.WriteString("\n</body></html>\n")

	outputPath := filepath.ToSlash(filepath.Join("transformed", "html", transformedFilename(msg, "html")))

	if err := writeUnderRoot(root, outputPath, buf.Bytes()); err != nil {
		return RenderResult{}, err
	}

	return RenderResult{OutputPath: outputPath, SizeBytes: int64(buf.Len())}, nil
}

// writeHeaderBlock renders a small From/To/[Cc]/Date/Subject summary,
// honoring hide_cc and hide_bcc.
func writeHeaderBlock(buf *bytes.Buffer, env *enmime.Envelope, opts mailkeepconfig.HTMLOptions) {
	buf.WriteString("<dl class=\"mailkeep-headers\">\n")
	writeHeaderLine(buf, "From", env.GetHeader("From"))
	writeHeaderLine(buf, "To", env.GetHeader("To"))

	if !opts.HideCC {
		if cc := env.GetHeader("Cc"); cc != "" {
			writeHeaderLine(buf, "Cc", cc)
		}
	}

	if !opts.HideBCC {
		if bcc := env.GetHeader("Bcc"); bcc != "" {
			writeHeaderLine(buf, "Bcc", bcc)
		}
	}

	writeHeaderLine(buf, "Date", env.GetHeader("Date"))
	writeHeaderLine(buf, "Subject", env.GetHeader("Subject"))
	buf.WriteString("</dl>\n")
}

func writeHeaderLine(buf *bytes.Buffer, label, value string) {
	fmt.Fprintf(buf, "<dt>%s</dt><dd>%s</dd>\n", html.EscapeString(label), html.EscapeString(value))
}
