// Command mailkeep archives a hosted mailbox to a local directory tree of
// one-MIME-message-per-file, with derived HTML/Markdown renders and
// extracted attachments regenerated locally.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailkeep/mailkeep/internal/archivedb"
	"github.com/mailkeep/mailkeep/internal/credential"
	"github.com/mailkeep/mailkeep/internal/mailgraph"
	"github.com/mailkeep/mailkeep/internal/mailkeepconfig"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagOutput     string
	flagMailbox    string
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that load configuration themselves
// (auth commands run before any mailbox archive exists to resolve against).
const skipConfigAnnotation = "skipConfig"

// dbFileName is the state store's filename under <archive root>/status/.
const dbFileName = "mailkeep.db"

// tokenFileName is the saved OAuth2 token's filename under the user's
// config directory, independent of any particular archive root.
const tokenFileName = "token.json"

// CLIContext bundles the resolved config, archive root, and logger that
// every config-dependent command needs. Built once in PersistentPreRunE.
type CLIContext struct {
	Cfg    *mailkeepconfig.Config
	Root   string
	Logger *slog.Logger
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context, or nil
// if no config was loaded (commands carrying skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext extracts the CLIContext or panics. Use only from RunE
// handlers of commands that do not carry skipConfigAnnotation — the
// command tree guarantees PersistentPreRunE has already populated it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — command must not carry skipConfigAnnotation")
	}

	return cc
}

const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newMailgraphClient wires the credential Gateway in as mailgraph's
// TokenSource — the two packages are connected only here, at the
// composition root, exactly as both package docs describe.
func newMailgraphClient(gw *credential.Gateway, logger *slog.Logger) *mailgraph.Client {
	return mailgraph.NewClient(mailgraph.DefaultBaseURL, defaultHTTPClient(), gw, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mailkeep",
		Short:         "Archive a hosted mailbox to local EML files",
		Long:          "mailkeep syncs messages from a hosted mailbox to a local directory tree of one-MIME-message-per-file, with derived HTML/Markdown renders and extracted attachments regenerated locally.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagOutput, "output", "", "archive root directory")
	cmd.PersistentFlags().StringVar(&flagMailbox, "mailbox", "", "mailbox to archive (defaults to the authenticated user's own mailbox)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newTransformCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVerifyCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stashes a CLIContext in the command's context.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger()

	cli := mailkeepconfig.CLIOverrides{Mailbox: flagMailbox}

	env := mailkeepconfig.ReadEnvOverrides(logger)

	cfg, err := mailkeepconfig.Resolve(flagConfigPath, env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	root := flagOutput
	if root == "" {
		root = "."
	}

	finalLogger := buildLogger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cc := &CLIContext{Cfg: cfg, Root: root, Logger: finalLogger}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger builds a logger whose level follows --verbose/--debug/--quiet
// (mutually exclusive, enforced by Cobra), defaulting to warn.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// dbPath returns the state store path under the archive root, per spec.md
// §6's on-disk layout (status/<db-file>), creating the status/ directory
// if it does not already exist — the sqlite driver will not create missing
// parent directories itself.
func dbPath(root string) (string, error) {
	dir := filepath.Join(root, "status")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}

	return filepath.Join(dir, dbFileName), nil
}

func openStore(ctx context.Context, root string, logger *slog.Logger) (*archivedb.Store, error) {
	path, err := dbPath(root)
	if err != nil {
		return nil, err
	}

	return archivedb.New(ctx, path, logger)
}

// tokenPath returns the path the Credential Gateway persists the OAuth2
// token to. It lives under the user's config directory rather than under
// any one archive root — a single login serves every archive the user
// points mailkeep at.
func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}

	dir = filepath.Join(dir, "mailkeep")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	return filepath.Join(dir, tokenFileName), nil
}
