package mailkeepconfig

import "fmt"

// Validate checks invariants that must hold once defaults, file, env, and
// CLI overrides have all been applied.
func Validate(cfg *Config) error {
	if cfg.Sync.CheckpointInterval <= 0 {
		return fmt.Errorf("sync.checkpoint_interval must be positive, got %d", cfg.Sync.CheckpointInterval)
	}

	if cfg.Sync.Parallel <= 0 {
		return fmt.Errorf("sync.parallel must be positive, got %d", cfg.Sync.Parallel)
	}

	if cfg.ZipExtraction.MinFiles < 0 {
		return fmt.Errorf("zip_extraction.min_files must be non-negative, got %d", cfg.ZipExtraction.MinFiles)
	}

	if cfg.ZipExtraction.MaxFiles > 0 && cfg.ZipExtraction.MaxFiles < cfg.ZipExtraction.MinFiles {
		return fmt.Errorf("zip_extraction.max_files (%d) must be >= min_files (%d)",
			cfg.ZipExtraction.MaxFiles, cfg.ZipExtraction.MinFiles)
	}

	return nil
}
