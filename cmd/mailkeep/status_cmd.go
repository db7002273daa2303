package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show archived folder counts and the last sync time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return runStatus(cmd, cc)
		},
	}
}

func runStatus(cmd *cobra.Command, cc *CLIContext) error {
	store, err := openStore(cmd.Context(), cc.Root, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	folders, err := store.ListFolders(cmd.Context())
	if err != nil {
		return archiveerr.New(archiveerr.KindIntegrity, "listing folders", err)
	}

	if cc.Cfg.Provider.Mailbox != "" {
		state, err := store.GetSyncState(cmd.Context(), cc.Cfg.Provider.Mailbox)
		if err != nil && !archiveerr.Is(err, archiveerr.KindNotFound) {
			return err
		}

		if state != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Mailbox: %s\n", state.MailboxID)

			if state.LastSyncTime != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Last sync: %s\n", time.Unix(0, *state.LastSyncTime).Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Last sync: never")
			}
		}
	}

	if len(folders) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No folders archived yet.")
		return nil
	}

	headers := []string{"FOLDER", "MESSAGES", "RESUMABLE"}
	rows := make([][]string, 0, len(folders))

	for _, f := range folders {
		messages, err := store.ListMessagesByFolder(cmd.Context(), f.LocalPath)
		if err != nil {
			return archiveerr.New(archiveerr.KindIntegrity, "listing messages for "+f.LocalPath, err)
		}

		resumable := "no"

		if progress, err := store.GetFolderSyncProgress(cmd.Context(), f.GraphID); err == nil && progress != nil {
			resumable = "yes"
		}

		rows = append(rows, []string{f.LocalPath, fmt.Sprintf("%d", len(messages)), resumable})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}
