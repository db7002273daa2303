package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailkeep/mailkeep/internal/emlstore"
	"github.com/mailkeep/mailkeep/internal/transform"
)

func newTransformCmd() *cobra.Command {
	var (
		flagOnly  string
		flagForce bool
	)

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Render HTML/Markdown and extract attachments for archived messages",
		Long: `Select every archived message missing a current derivative for each
enabled kind, render it, and record the result so the next run with the
same effective configuration skips it.

--only restricts the run to a single kind (html, markdown, or attachments)
regardless of which kinds the config file enables. --force re-renders every
message regardless of its recorded config version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return runTransform(cmd, cc, flagOnly, flagForce)
		},
	}

	cmd.Flags().StringVar(&flagOnly, "only", "", "restrict to one kind: html, markdown, or attachments")
	cmd.Flags().BoolVar(&flagForce, "force", false, "re-render every message regardless of recorded config version")

	return cmd
}

func runTransform(cmd *cobra.Command, cc *CLIContext, only string, force bool) error {
	store, err := openStore(cmd.Context(), cc.Root, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eml := emlstore.New(cc.Root, cc.Logger)

	driver := transform.New(store, eml, cc.Root, cc.Cfg.Transformations, cc.Cfg.SecurityOptions(), cc.Logger)

	var reports []transform.Report

	if only != "" {
		kind := transform.Kind(only)

		var report transform.Report
		if force {
			report, err = driver.RunForced(cmd.Context(), kind)
		} else {
			report, err = driver.Run(cmd.Context(), kind)
		}

		if err != nil {
			return err
		}

		reports = []transform.Report{report}
	} else if force {
		reports, err = driver.RunAllForced(cmd.Context())
		if err != nil {
			return err
		}
	} else {
		reports, err = driver.RunAll(cmd.Context())
		if err != nil {
			return err
		}
	}

	for _, r := range reports {
		statusf("%-12s selected %d, rendered %d, errors %d\n", r.Kind, r.Selected, r.Rendered, r.Errors)
	}

	var errCount int
	for _, r := range reports {
		errCount += r.Errors
	}

	if errCount > 0 {
		return fmt.Errorf("transform completed with %d errors", errCount)
	}

	return nil
}
