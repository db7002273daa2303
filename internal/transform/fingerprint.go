package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mailkeep/mailkeep/internal/mailkeepconfig"
	"github.com/mailkeep/mailkeep/internal/security"
)

// fingerprint returns an opaque, deterministic hash of the option fields
// that can change a renderer's output, per spec.md §3's "config_version
// (opaque fingerprint of the effective options)". It is computed once per
// Driver and reused across every message a run transforms.
func fingerprint(cfg mailkeepconfig.TransformationsConfig, secOpts security.Options) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%+v|%+v", cfg, secOpts)))
	return hex.EncodeToString(sum[:])[:16]
}
