package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mailkeep/mailkeep/internal/archivedb"
)

// transformedFilename derives an output filename from the message's
// already-unique EML basename, so no new collision-avoidance scheme is
// needed: one canonical file can never produce two different transformed
// files with the same name.
func transformedFilename(msg *archivedb.Message, ext string) string {
	base := strings.TrimSuffix(filepath.Base(msg.LocalPath), filepath.Ext(msg.LocalPath))
	return base + "." + ext
}

// writeUnderRoot writes data to root/relativePath crash-safely (temp file,
// fsync, rename), the same discipline EML Storage uses for the canonical
// message files.
func writeUnderRoot(root, relativePath string, data []byte) error {
	absPath := filepath.Join(root, filepath.FromSlash(relativePath))

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory for %s: %w", relativePath, err)
	}

	tempPath := absPath + ".part-" + uuid.NewString()

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp file %s: %w", tempPath, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)

		return fmt.Errorf("writing temp file %s: %w", tempPath, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)

		return fmt.Errorf("fsyncing temp file %s: %w", tempPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming %s to %s: %w", tempPath, absPath, err)
	}

	return nil
}
