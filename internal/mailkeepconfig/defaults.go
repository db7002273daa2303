package mailkeepconfig

// Default values for configuration options — layer 0 of the four-layer
// override chain (defaults -> file -> env -> CLI).
const (
	defaultCheckpointInterval = 50
	defaultParallel           = 4
	defaultZipMinFiles        = 1
	defaultZipMaxFiles        = 5000
)

// DefaultConfig returns a Config populated with every default value. Load
// decodes the config file onto a copy of this, so fields the file omits
// keep their default rather than zeroing out.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			CheckpointInterval: defaultCheckpointInterval,
			Parallel:           defaultParallel,
		},
		Transformations: TransformationsConfig{
			GenerateHTML:       true,
			GenerateMarkdown:   false,
			ExtractAttachments: true,
			HTMLOptions: HTMLOptions{
				StripExternalImages: true,
				HideBCC:             true,
			},
			AttachmentOptions: AttachmentOptions{
				SkipExecutables: true,
			},
		},
		ZipExtraction: ZipExtractionConfig{
			Enabled:                true,
			MinFiles:               defaultZipMinFiles,
			MaxFiles:               defaultZipMaxFiles,
			SkipEncrypted:          true,
			SkipWithExecutables:    true,
			BlockExecutablesDirect: true,
		},
	}
}
