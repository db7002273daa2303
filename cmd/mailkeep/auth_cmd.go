package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
	"github.com/mailkeep/mailkeep/internal/credential"
)

// newAuthCmd groups the three credential lifecycle subcommands under one
// namespace, as spec.md's CLI surface names them: `auth {login|logout|status}`.
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the mail provider login",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "login",
		Short:       "Authenticate with the mail provider via device code",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runAuthLogin,
	}
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	path, err := tokenPath()
	if err != nil {
		return archiveerr.New(archiveerr.KindFilesystem, "resolving token path", err)
	}

	display := func(da credential.DeviceAuth) {
		fmt.Fprintf(cmd.OutOrStdout(), "To sign in, visit %s and enter code %s\n", da.VerificationURI, da.UserCode)
	}

	if _, err := credential.Login(cmd.Context(), path, display, logger); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Login successful.")

	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the saved mail provider token",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runAuthLogout,
	}
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	path, err := tokenPath()
	if err != nil {
		return archiveerr.New(archiveerr.KindFilesystem, "resolving token path", err)
	}

	if err := credential.Logout(path, logger); err != nil {
		return archiveerr.New(archiveerr.KindFilesystem, "logging out", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")

	return nil
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show whether a mail provider token is saved and its expiry",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runAuthStatus,
	}
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	path, err := tokenPath()
	if err != nil {
		return archiveerr.New(archiveerr.KindFilesystem, "resolving token path", err)
	}

	gw, err := credential.LoadGateway(cmd.Context(), path, logger)
	if err != nil {
		if errors.Is(err, credential.ErrNotLoggedIn) {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}

		return err
	}

	tok := gw.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in, token expires %s\n", tok.ExpiresOn.Format("2006-01-02 15:04:05 MST"))

	return nil
}
