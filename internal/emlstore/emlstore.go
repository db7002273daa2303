// Package emlstore is the canonical on-disk archive of MIME messages: one
// file per message, laid out flat by receive date rather than by server
// folder. The server-side folder hierarchy is recorded only as metadata in
// the state store; this package never reorganizes files when a message
// moves between folders.
package emlstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mailkeep/mailkeep/internal/archiveerr"
	"github.com/mailkeep/mailkeep/internal/sanitize"
)

const (
	emlDir        = "eml"
	quarantineDir = "_Quarantine"
	tempSuffix    = ".part"
)

// ErrQuarantineSourceMissing is returned by MoveToQuarantine when the file
// named by relativePath is already gone. The sync engine treats this as
// non-fatal: the database row is still updated to reflect quarantine.
var ErrQuarantineSourceMissing = errors.New("emlstore: quarantine source missing")

// Store is the EML archive rooted at a directory. A Store holds no lock:
// the collision probe in Store is a stat check made before the write, and
// the write ends in a rename that replaces any existing file, so concurrent
// Store calls that generate the same filename are not serialized against
// each other.
type Store struct {
	root   string
	logger *slog.Logger
}

// New returns a Store rooted at root. root must already exist.
func New(root string, logger *slog.Logger) *Store {
	return &Store{root: root, logger: logger}
}

// Store writes mimeBytes under eml/YYYY/MM/ using a filename derived from
// folderPath, subject, and received, crash-safely (temp file, fsync,
// rename), and returns the archive-relative path of the written file.
func (s *Store) Store(mimeBytes []byte, folderPath, subject string, received time.Time) (string, error) {
	dir := dateDir(received)
	absDir := filepath.Join(s.root, emlDir, dir)

	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", archiveerr.New(archiveerr.KindFilesystem, "creating message directory", fmt.Errorf("mkdir %s: %w", absDir, err))
	}

	name := sanitize.EnsureUnique(
		func(collision int) string {
			return sanitize.Filename(s.root, folderPath, subject, received, collision)
		},
		func(candidate string) bool {
			_, err := os.Stat(filepath.Join(absDir, candidate))
			return err == nil
		},
	)

	absPath := filepath.Join(absDir, name)
	if err := writeCrashSafe(absPath, mimeBytes); err != nil {
		return "", archiveerr.New(archiveerr.KindFilesystem, "writing message", err)
	}

	relPath := filepath.Join(emlDir, dir, name)
	s.logger.Debug("stored message", slog.String("path", relPath), slog.Int("bytes", len(mimeBytes)))

	return relPath, nil
}

// writeCrashSafe writes data to a sibling temp file, fsyncs it, closes it,
// and renames it into place — the target path is never observable in a
// partially-written state.
func writeCrashSafe(targetPath string, data []byte) error {
	tempPath := targetPath + tempSuffix + "-" + uuid.NewString()

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

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming %s to %s: %w", tempPath, targetPath, err)
	}

	return nil
}

// MoveToQuarantine relocates the file at relativePath to
// _Quarantine/<relativePath>, preserving the eml/YYYY/MM sub-path, and
// returns the new relative path. A missing source is reported via
// ErrQuarantineSourceMissing rather than a generic filesystem error, so
// callers can still update the database row.
func (s *Store) MoveToQuarantine(relativePath string) (string, error) {
	srcAbs, err := s.FullPathOf(relativePath)
	if err != nil {
		return "", err
	}

	newRelative := filepath.Join(quarantineDir, relativePath)
	dstAbs := filepath.Join(s.root, newRelative)

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return "", archiveerr.New(archiveerr.KindFilesystem, "creating quarantine directory", err)
	}

	if err := os.Rename(srcAbs, dstAbs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrQuarantineSourceMissing
		}

		return "", archiveerr.New(archiveerr.KindFilesystem, "moving to quarantine", err)
	}

	s.logger.Debug("quarantined message", slog.String("from", relativePath), slog.String("to", newRelative))

	return newRelative, nil
}

// OpenRead opens the file at relativePath for reading.
func (s *Store) OpenRead(relativePath string) (io.ReadCloser, error) {
	absPath, err := s.FullPathOf(relativePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindFilesystem, "opening message", err)
	}

	return f, nil
}

// Exists reports whether relativePath names a file currently in the
// archive. An invalid (escaping) path is reported as not existing.
func (s *Store) Exists(relativePath string) bool {
	absPath, err := s.FullPathOf(relativePath)
	if err != nil {
		return false
	}

	_, err = os.Stat(absPath)
	return err == nil
}

// Delete removes the file at relativePath.
func (s *Store) Delete(relativePath string) error {
	absPath, err := s.FullPathOf(relativePath)
	if err != nil {
		return err
	}

	if err := os.Remove(absPath); err != nil {
		return archiveerr.New(archiveerr.KindFilesystem, "deleting message", err)
	}

	return nil
}

// Size returns the size in bytes of the file at relativePath.
func (s *Store) Size(relativePath string) (int64, error) {
	absPath, err := s.FullPathOf(relativePath)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return 0, archiveerr.New(archiveerr.KindFilesystem, "stat message", err)
	}

	return info.Size(), nil
}

// FullPathOf resolves relativePath against the archive root and rejects any
// path that escapes the root after canonicalisation.
func (s *Store) FullPathOf(relativePath string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(s.root, relativePath))

	rel, err := filepath.Rel(s.root, cleaned)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", archiveerr.New(archiveerr.KindSecurity, "path escapes archive root", fmt.Errorf("relative path %q", relativePath))
	}

	return cleaned, nil
}

// dateDir returns the "YYYY/MM" directory for a receive time, in UTC so the
// same message always lands in the same directory regardless of caller
// timezone.
func dateDir(received time.Time) string {
	utc := received.UTC()
	return filepath.Join(fmt.Sprintf("%04d", utc.Year()), fmt.Sprintf("%02d", utc.Month()))
}
