// Command langsync keeps translated documentation
// repositories in sync with their source-language
// upstream. Clean merges are pushed straight to the
// primary branch; conflicting ones become pull requests
// listing the files that need new translations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/byte4ever/langsync/langsync/config"
	"github.com/byte4ever/langsync/langsync/git"
	"github.com/byte4ever/langsync/langsync/logging"
	"github.com/byte4ever/langsync/langsync/prbody"
	"github.com/byte4ever/langsync/langsync/provision"
	"github.com/byte4ever/langsync/langsync/syncer"
)

const defaultConfigPath = "langsync.yaml"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	const errCtx = "running langsync"

	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	opts := &rootOptions{}

	defer opts.close()

	if err := newRootCmd(opts).ExecuteContext(
		context.Background(),
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// loadDotEnv exports the variables of path, if the file
// exists. Variables already set are left alone.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("loading %s: %w", path, err)
}

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string

	logCloser io.Closer
}

func (o *rootOptions) close() {
	if o.logCloser == nil {
		return
	}

	if err := o.logCloser.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
	}
}

func (o *rootOptions) setupLogging(cmd *cobra.Command) error {
	logger, closer, err := logging.New(logging.Options{
		Level:  o.logLevel,
		Format: logging.Format(o.logFormat),
		File:   o.logFile,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	o.logCloser = closer
	slog.SetDefault(logger)

	return nil
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "langsync",
		Short: "Merge upstream documentation changes into translations",
		Long: `langsync merges the source-language repository into translated
repositories. A clean merge is pushed to the primary branch. A merge with
conflicts is committed on a sync-<hash> branch and proposed as a pull request
with a checklist of the conflicting files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setupLogging(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(
		&opts.configPath, "config", "c", defaultConfigPath,
		"Path to the YAML configuration file",
	)
	flags.StringVar(
		&opts.logLevel, "log-level", "info",
		"Log level: debug, info, warn, or error",
	)
	flags.StringVar(
		&opts.logFormat, "log-format", "",
		"Console log format: text or json (default: "+
			"text on terminals, json otherwise)",
	)
	flags.StringVar(
		&opts.logFile, "log-file", "",
		"Also write debug logs to this rotated file",
	)

	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newRenderBodyCmd(opts))

	return cmd
}

type syncOptions struct {
	dryRun  bool
	timeout time.Duration
	json    bool
}

func newSyncCmd(root *rootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync <lang>...",
		Short: "Sync one or more translations with upstream",
		Long: `Sync each language in turn. The first failure stops the run.

For every language the working copy under repo_root is cloned or reset to
origin, upstream is merged into sync-<hash>, and the result is either pushed
to the primary branch or opened as a pull request.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			runner := syncer.NewRunner(
				cfg,
				provision.New(cfg),
				func(repo string) (git.PRProvider, error) {
					return newPRProvider(cfg, repo)
				},
				syncer.WithDryRun(opts.dryRun),
			)

			return syncAll(
				cmd.Context(), cmd.OutOrStdout(),
				runner, args, opts,
			)
		},
	}

	cmd.Flags().BoolVar(
		&opts.dryRun, "dry-run", false,
		"Merge and commit locally but skip push and pull request",
	)
	cmd.Flags().DurationVar(
		&opts.timeout, "timeout", 0,
		"Abort a single language sync after this long (0 = no limit)",
	)
	cmd.Flags().BoolVar(
		&opts.json, "json", false,
		"Print results as JSON lines",
	)

	return cmd
}

// langSyncer is the part of *syncer.Runner used by
// syncAll.
type langSyncer interface {
	Sync(ctx context.Context, code string) (*syncer.Result, error)
}

// syncAll syncs codes one after another and reports
// each result on out.
func syncAll(
	ctx context.Context,
	out io.Writer,
	runner langSyncer,
	codes []string,
	opts *syncOptions,
) error {
	const errCtx = "syncing"

	for _, code := range codes {
		res, err := syncOne(ctx, runner, code, opts.timeout)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		if err := printResult(out, res, opts.json); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

func syncOne(
	ctx context.Context,
	runner langSyncer,
	code string,
	timeout time.Duration,
) (*syncer.Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return runner.Sync(ctx, code)
}

func printResult(
	out io.Writer,
	res *syncer.Result,
	asJSON bool,
) error {
	if asJSON {
		return json.NewEncoder(out).Encode(res)
	}

	line := fmt.Sprintf(
		"%s\t%s\t%s", res.Language, res.Outcome, res.Branch,
	)
	if res.PullRequest != nil {
		line += "\t" + res.PullRequest.URL
	}

	_, err := fmt.Fprintln(out, line)

	return err
}

type renderBodyOptions struct {
	hash      string
	conflicts []string
}

func newRenderBodyCmd(root *rootOptions) *cobra.Command {
	opts := &renderBodyOptions{}

	cmd := &cobra.Command{
		Use:   "render-body",
		Short: "Print the pull request title and body for a sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			short, err := git.ShortHash(opts.hash)
			if err != nil {
				return err
			}

			return renderBody(cmd.OutOrStdout(), cfg, short, opts.conflicts)
		},
	}

	cmd.Flags().StringVar(
		&opts.hash, "hash", "",
		"Upstream commit hash (at least 8 characters)",
	)
	cmd.Flags().StringSliceVar(
		&opts.conflicts, "conflict", nil,
		"Conflicting file (repeatable)",
	)

	_ = cmd.MarkFlagRequired("hash")

	return cmd
}

func renderBody(
	out io.Writer,
	cfg *config.Config,
	short string,
	conflicts []string,
) error {
	body := prbody.Body(prbody.Data{
		Org:            cfg.Org,
		MainRepo:       cfg.MainRepoName(),
		WebURL:         cfg.WebURL,
		PrimaryBranch:  cfg.PrimaryBranch,
		UpstreamBranch: cfg.UpstreamBranch,
		ShortHash:      short,
		ConflictFiles:  conflicts,
	})

	_, err := fmt.Fprintf(
		out, "%s\n\n%s", prbody.Title(short), body,
	)

	return err
}
