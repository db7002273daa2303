package mailkeepconfig

// CLIOverrides carries flag values from the `sync` command, the highest
// layer of the precedence chain. Pointer bool fields distinguish "flag not
// passed" (nil) from "flag explicitly set to false" — a plain bool can't
// make that distinction, and `--html=false` must be able to turn off a
// config file's `generate_html: true`.
type CLIOverrides struct {
	Output             string
	Mailbox            string
	Folder             string
	ExcludePatterns    []string
	CheckpointInterval int // 0 means "not set"
	Parallel           int // 0 means "not set"
	DryRun             *bool
	GenerateHTML       *bool
	GenerateMarkdown   *bool
	ExtractAttachments *bool
}

// Apply layers CLI overrides onto cfg, the final and highest-priority step
// in the chain. Only fields the caller actually set are applied — Cobra
// reports this via cmd.Flags().Changed("flag-name"), so the CLI layer is
// responsible for leaving pointer fields nil and numeric/string fields at
// their zero value when the user didn't pass the flag.
func Apply(cfg *Config, cli CLIOverrides) {
	if cli.Mailbox != "" {
		cfg.Provider.Mailbox = cli.Mailbox
	}

	if cli.CheckpointInterval > 0 {
		cfg.Sync.CheckpointInterval = cli.CheckpointInterval
	}

	if cli.Parallel > 0 {
		cfg.Sync.Parallel = cli.Parallel
	}

	if len(cli.ExcludePatterns) > 0 {
		cfg.Sync.ExcludeFolders = append(cfg.Sync.ExcludeFolders, cli.ExcludePatterns...)
	}

	if cli.GenerateHTML != nil {
		cfg.Transformations.GenerateHTML = *cli.GenerateHTML
	}

	if cli.GenerateMarkdown != nil {
		cfg.Transformations.GenerateMarkdown = *cli.GenerateMarkdown
	}

	if cli.ExtractAttachments != nil {
		cfg.Transformations.ExtractAttachments = *cli.ExtractAttachments
	}
}
