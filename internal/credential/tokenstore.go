package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// filePerms restricts the saved token to owner-only read/write; it carries
// a live refresh token and must not be group- or world-readable.
const filePerms = 0o600

// dirPerms is used when creating the token file's parent directory.
const dirPerms = 0o700

// tokenFile is the on-disk format: the OAuth2 token plus an optional map of
// string metadata, stored and returned as given (the login and refresh paths
// in this package save none).
type tokenFile struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// loadToken reads a saved token file. Returns (nil, nil, nil) if the file
// does not exist — "not logged in" is a normal state, not an error.
func loadToken(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "no token file yet"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("credential: reading %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("credential: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("credential: %s missing token field (re-login required)", path)
	}

	return tf.Token, tf.Meta, nil
}

// saveToken writes the token file atomically (temp file in the same
// directory, fsync, rename) so a crash between writes never leaves a
// truncated or missing token file.
func saveToken(path string, tok *oauth2.Token, meta map[string]string) error {
	tf := tokenFile{Token: tok, Meta: meta}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("credential: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("credential: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credential: renaming into place: %w", err)
	}

	success = true

	return nil
}

// removeToken deletes the saved token file. Missing file is not an error —
// it means the caller is already logged out.
func removeToken(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
