package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
	"github.com/mailkeep/mailkeep/internal/emlstore"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every archived message's canonical file against the state store",
		Long: `Walk every archived message and confirm its canonical EML file still
exists at its recorded path with its recorded size. Reports any mismatch
and exits non-zero if one is found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return runVerify(cmd, cc)
		},
	}
}

type verifyMismatch struct {
	graphID string
	path    string
	status  string
}

func runVerify(cmd *cobra.Command, cc *CLIContext) error {
	store, err := openStore(cmd.Context(), cc.Root, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eml := emlstore.New(cc.Root, cc.Logger)

	folders, err := store.ListFolders(cmd.Context())
	if err != nil {
		return archiveerr.New(archiveerr.KindIntegrity, "listing folders", err)
	}

	var verified int
	var mismatches []verifyMismatch

	for _, f := range folders {
		messages, err := store.ListMessagesByFolder(cmd.Context(), f.LocalPath)
		if err != nil {
			return archiveerr.New(archiveerr.KindIntegrity, "listing messages for "+f.LocalPath, err)
		}

		for _, m := range messages {
			if !eml.Exists(m.LocalPath) {
				mismatches = append(mismatches, verifyMismatch{graphID: m.GraphID, path: m.LocalPath, status: "missing"})
				continue
			}

			size, err := eml.Size(m.LocalPath)
			if err != nil {
				mismatches = append(mismatches, verifyMismatch{graphID: m.GraphID, path: m.LocalPath, status: "unreadable"})
				continue
			}

			if size != m.Size {
				mismatches = append(mismatches, verifyMismatch{graphID: m.GraphID, path: m.LocalPath, status: "size mismatch"})
				continue
			}

			verified++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Verified: %d messages\n", verified)

	if len(mismatches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "All files verified successfully.")
		return nil
	}

	headers := []string{"PATH", "STATUS", "MESSAGE_ID"}
	rows := make([][]string, len(mismatches))

	for i, m := range mismatches {
		rows[i] = []string{m.path, m.status, m.graphID}
	}

	printTable(os.Stdout, headers, rows)

	return fmt.Errorf("verify found %d mismatches", len(mismatches))
}
