package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/archiveerr"
	"github.com/mailkeep/mailkeep/internal/credential"
	"github.com/mailkeep/mailkeep/internal/emlstore"
	"github.com/mailkeep/mailkeep/internal/mailkeepconfig"
	"github.com/mailkeep/mailkeep/internal/syncengine"
	"github.com/mailkeep/mailkeep/internal/transform"
)

func newSyncCmd() *cobra.Command {
	var (
		flagCheckpointInterval int
		flagParallel           int
		flagDryRun             bool
		flagFolder             string
		flagExclude            []string
		flagHTML               bool
		flagMarkdown           bool
		flagAttachments        bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Archive new, deleted, and moved messages from the mailbox",
		Long: `Run one sync pass: resolve the mailbox, walk every non-excluded folder's
delta feed, and write newly seen messages to canonical EML files.

With --html, --markdown, or --attachments, each newly archived message is
also rendered inline as it lands, instead of waiting for a separate
"transform" run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := mailkeepconfig.CLIOverrides{}

			if cmd.Flags().Changed("checkpoint-interval") {
				overrides.CheckpointInterval = flagCheckpointInterval
			}

			if cmd.Flags().Changed("parallel") {
				overrides.Parallel = flagParallel
			}

			if cmd.Flags().Changed("exclude") {
				overrides.ExcludePatterns = flagExclude
			}

			if cmd.Flags().Changed("html") {
				overrides.GenerateHTML = &flagHTML
			}

			if cmd.Flags().Changed("markdown") {
				overrides.GenerateMarkdown = &flagMarkdown
			}

			if cmd.Flags().Changed("attachments") {
				overrides.ExtractAttachments = &flagAttachments
			}

			cc := mustCLIContext(cmd.Context())
			mailkeepconfig.Apply(cc.Cfg, overrides)

			return runSync(cmd.Context(), cc, flagFolder, flagDryRun)
		},
	}

	cmd.Flags().IntVar(&flagCheckpointInterval, "checkpoint-interval", 0, "messages processed between checkpoint commits")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "maximum concurrent MIME downloads")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would be archived without writing anything")
	cmd.Flags().StringVar(&flagFolder, "folder", "", "restrict sync to one folder subtree")
	cmd.Flags().StringArrayVar(&flagExclude, "exclude", nil, "folder glob pattern to exclude (repeatable)")
	cmd.Flags().BoolVar(&flagHTML, "html", false, "render HTML for each archived message as it is archived")
	cmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "render Markdown for each archived message as it is archived")
	cmd.Flags().BoolVar(&flagAttachments, "attachments", false, "extract attachments for each archived message as it is archived")

	return cmd
}

func runSync(ctx context.Context, cc *CLIContext, folderScope string, dryRun bool) error {
	path, err := tokenPath()
	if err != nil {
		return archiveerr.New(archiveerr.KindFilesystem, "resolving token path", err)
	}

	gw, err := credential.LoadGateway(ctx, path, cc.Logger)
	if err != nil {
		return err
	}

	client := newMailgraphClient(gw, cc.Logger)

	store, err := openStore(ctx, cc.Root, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eml := emlstore.New(cc.Root, cc.Logger)

	driver := transform.New(store, eml, cc.Root, cc.Cfg.Transformations, cc.Cfg.SecurityOptions(), cc.Logger)

	opts := syncengine.Options{
		Mailbox:              cc.Cfg.Provider.Mailbox,
		FolderScope:          folderScope,
		ExcludePatterns:      cc.Cfg.Sync.ExcludeFolders,
		CheckpointInterval:   cc.Cfg.Sync.CheckpointInterval,
		MaxParallelDownloads: cc.Cfg.Sync.Parallel,
		DryRun:               dryRun,
	}

	if cc.Cfg.Transformations.GenerateHTML || cc.Cfg.Transformations.GenerateMarkdown || cc.Cfg.Transformations.ExtractAttachments {
		opts.OnMessageArchived = func(ctx context.Context, msg *archivedb.Message) {
			if err := driver.RenderMessage(ctx, msg.GraphID); err != nil {
				cc.Logger.Warn("inline transform failed", "message_id", msg.GraphID, "error", err.Error())
			}
		}
	}

	engine := syncengine.New(client, store, eml, cc.Logger, opts)

	report, err := engine.Run(ctx)

	printSyncReport(report)

	if err != nil {
		if report != nil && report.Cancelled {
			return archiveerr.New(archiveerr.KindCancelled, "sync interrupted", err)
		}

		return err
	}

	if report.Errors > 0 {
		return fmt.Errorf("sync completed with %d message errors", report.Errors)
	}

	return nil
}

func printSyncReport(report *syncengine.Report) {
	if report == nil {
		return
	}

	statusf("Folders processed: %d\n", report.FoldersProcessed)
	statusf("Archived:          %d\n", report.Archived)
	statusf("Skipped:           %d\n", report.Skipped)

	if report.Quarantined > 0 {
		statusf("Quarantined:       %d\n", report.Quarantined)
	}

	if report.Moved > 0 {
		statusf("Moved:             %d\n", report.Moved)
	}

	if report.Errors > 0 {
		statusf("Errors:            %d\n", report.Errors)
	}
}
