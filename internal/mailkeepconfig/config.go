// Package mailkeepconfig loads and resolves mailkeep's YAML configuration
// through the four-layer precedence chain: built-in defaults, config file,
// environment variables, then CLI flags (highest priority).
package mailkeepconfig

// Config is the top-level, fully-resolved configuration mailkeep runs with.
type Config struct {
	Provider        ProviderConfig        `yaml:"provider"`
	Sync            SyncConfig            `yaml:"sync"`
	Transformations TransformationsConfig `yaml:"transformations"`
	ZipExtraction   ZipExtractionConfig   `yaml:"zip_extraction"`
}

// ProviderConfig names the mail provider application registration and the
// mailbox to archive.
type ProviderConfig struct {
	ClientID string `yaml:"client_id"`
	TenantID string `yaml:"tenant_id"`
	Mailbox  string `yaml:"mailbox"`
}

// SyncConfig controls the sync engine's resource usage and folder scope.
type SyncConfig struct {
	CheckpointInterval int      `yaml:"checkpoint_interval"`
	Parallel           int      `yaml:"parallel"`
	ExcludeFolders     []string `yaml:"exclude_folders"`
}

// TransformationsConfig selects which derivative artifacts the Transformation
// Driver produces and how.
type TransformationsConfig struct {
	GenerateHTML       bool              `yaml:"generate_html"`
	GenerateMarkdown   bool              `yaml:"generate_markdown"`
	ExtractAttachments bool              `yaml:"extract_attachments"`
	HTMLOptions        HTMLOptions       `yaml:"html_options"`
	AttachmentOptions  AttachmentOptions `yaml:"attachment_options"`
}

// HTMLOptions controls the HTML renderer's sanitization and privacy behavior.
type HTMLOptions struct {
	InlineStyles        bool `yaml:"inline_styles"`
	StripExternalImages  bool `yaml:"strip_external_images"`
	HideCC              bool `yaml:"hide_cc"`
	HideBCC             bool `yaml:"hide_bcc"`
}

// AttachmentOptions controls the attachments renderer's direct-write policy,
// independent of the ZIP-specific screening in ZipExtractionConfig.
type AttachmentOptions struct {
	SkipExecutables bool `yaml:"skip_executables"`
}

// ZipExtractionConfig mirrors internal/security.Options field-for-field; see
// spec.md §4.3's Configurable options list.
type ZipExtractionConfig struct {
	Enabled                bool `yaml:"enabled"`
	MinFiles               int  `yaml:"min_files"`
	MaxFiles               int  `yaml:"max_files"`
	SkipEncrypted          bool `yaml:"skip_encrypted"`
	SkipWithExecutables    bool `yaml:"skip_with_executables"`
	BlockExecutablesDirect bool `yaml:"block_executables_direct"`
}
