package transform

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/mailkeep/mailkeep/internal/archivedb"
)

// markdownRenderer reuses enmime's decoded text part and wraps it with a
// small header preamble; no additional dependency is needed beyond enmime.
type markdownRenderer struct{}

func (r *markdownRenderer) Render(ctx context.Context, msg *archivedb.Message, mime []byte, root string) (RenderResult, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(mime))
	if err != nil {
		return RenderResult{}, fmt.Errorf("decoding mime for %s: %w", msg.GraphID, err)
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", orPlaceholder(env.GetHeader("Subject"), "(no subject)"))
	fmt.Fprintf(&buf, "- **From:** %s\n", env.GetHeader("From"))
	fmt.Fprintf(&buf, "- **To:** %s\n", env.GetHeader("To"))

	if cc := env.GetHeader("Cc"); cc != "" {
		fmt.Fprintf(&buf, "- **Cc:** %s\n", cc)
	}

	fmt.Fprintf(&buf, "- **Date:** %s\n\n---\n\n", env.GetHeader("Date"))

	body := env.Text
	if body == "" {
		body = stripTags(env.HTML)
	}

	buf.WriteString(strings.TrimSpace(body))
	buf.WriteString("\n")

	outputPath := filepath.ToSlash(filepath.Join("transformed", "markdown", transformedFilename(msg, "md")))

	if err := writeUnderRoot(root, outputPath, buf.Bytes()); err != nil {
		return RenderResult{}, err
	}

	return RenderResult{OutputPath: outputPath, SizeBytes: int64(buf.Len())}, nil
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}

	return s
}

// stripTags is a minimal best-effort fallback for messages with only an
// HTML part: it is not a full HTML parser, just enough to give the
// Markdown renderer plain text when no text/plain part exists.
func stripTags(htmlBody string) string {
	var buf strings.Builder

	inTag := false

	for _, r := range htmlBody {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			buf.WriteRune(r)
		}
	}

	return buf.String()
}
