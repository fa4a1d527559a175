package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/byte4ever/langsync/langsync/config"
	"github.com/byte4ever/langsync/langsync/git"
	"github.com/byte4ever/langsync/langsync/prbody"
)

// commitMessage is used for the commit recording the
// upstream merge, conflict markers included.
const commitMessage = "merging all conflicts"

// Outcome names the path a sync took.
type Outcome string

// Sync outcomes.
const (
	// OutcomeUpToDate means upstream had nothing new.
	OutcomeUpToDate Outcome = "up-to-date"
	// OutcomePushedDirect means the merge was clean and
	// pushed straight to the primary branch.
	OutcomePushedDirect Outcome = "pushed-direct"
	// OutcomePROpened means the sync branch was pushed
	// and a pull request opened.
	OutcomePROpened Outcome = "pr-opened"
	// OutcomeDryRun means the merge was committed
	// locally and nothing was pushed.
	OutcomeDryRun Outcome = "dry-run"
)

// Provisioner prepares the working copy of a language
// before a sync.
type Provisioner interface {
	EnsureRepoUpToDate(ctx context.Context, code string) error
}

// ProvisionerFunc adapts a plain function to the
// Provisioner interface.
type ProvisionerFunc func(ctx context.Context, code string) error

// EnsureRepoUpToDate calls f.
func (f ProvisionerFunc) EnsureRepoUpToDate(
	ctx context.Context,
	code string,
) error {
	return f(ctx, code)
}

// ProviderFactory returns the pull request provider for
// a translated repository name.
type ProviderFactory func(repo string) (git.PRProvider, error)

// Result describes one sync attempt.
type Result struct {
	Language  string  `json:"language"`
	ShortHash string  `json:"short_hash"`
	Branch    string  `json:"branch"`
	Outcome   Outcome `json:"outcome"`
	// ConflictFiles lists unmerged paths in the order
	// git reported them.
	ConflictFiles []string `json:"conflict_files"`
	// Merged is true when the primary branch was
	// updated directly.
	Merged      bool             `json:"merged"`
	PullRequest *git.PullRequest `json:"pull_request,omitempty"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithDryRun makes the runner stop before pushing.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithLogger sets the logger sync progress is reported
// to. Defaults to slog.Default() at construction time.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRand sets the source used to pick reviewers.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) {
		r.rand = rng
	}
}

// Runner merges upstream changes into translated
// repositories, one language at a time.
type Runner struct {
	cfg         *config.Config
	provisioner Provisioner
	newProvider ProviderFactory
	dryRun      bool
	rand        *rand.Rand
	logger      *slog.Logger
}

// NewRunner returns a Runner. newProvider is only called
// when a pull request has to be opened.
func NewRunner(
	cfg *config.Config,
	provisioner Provisioner,
	newProvider ProviderFactory,
	opts ...Option,
) *Runner {
	r := &Runner{
		cfg:         cfg,
		provisioner: provisioner,
		newProvider: newProvider,
		logger:      slog.Default(),
		rand: rand.New( //nolint:gosec // reviewer choice
			rand.NewPCG(rand.Uint64(), rand.Uint64()),
		),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Sync brings the translated repository for code up to
// date with upstream. A clean merge is pushed to the
// primary branch; a conflicted one is committed on the
// sync branch, force-pushed, and proposed as a pull
// request listing the conflicting files.
func (r *Runner) Sync(
	ctx context.Context,
	code string,
) (*Result, error) {
	const errCtx = "syncing translation"

	if err := config.ValidateLanguage(code); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	log := r.logger.With("lang", code)

	if err := r.provisioner.EnsureRepoUpToDate(
		ctx, code,
	); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	repo := git.NewRepo(r.cfg.RepoDir(code))

	upstream := r.cfg.UpstreamBranch
	if err := repo.FetchUpstream(ctx, upstream); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	hash, err := repo.RevParse(
		ctx, repo.UpstreamRemote+"/"+upstream,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	branch, err := git.SyncBranchName(hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	short, _ := git.ShortHash(hash)

	res := &Result{
		Language:  code,
		ShortHash: short,
		Branch:    branch,
	}

	log = log.With("branch", res.Branch)

	if err := repo.RecreateBranch(
		ctx, res.Branch, r.cfg.PrimaryBranch,
	); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	outcome, _, err := repo.PullUpstream(ctx, upstream)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	switch outcome {
	case git.PullUpToDate:
		log.Debug("already up to date", "hash", short)

		res.Outcome = OutcomeUpToDate

		return res, nil
	case git.PullConflicted:
		log.Debug("merge stopped on conflicts")
	case git.PullMerged:
	}

	if res.ConflictFiles, err = repo.ConflictFiles(ctx); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	log.Debug("conflict files", "files", res.ConflictFiles)

	if _, err := repo.Commit(ctx, commitMessage); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	direct := len(res.ConflictFiles) == 0 && !r.cfg.AlwaysOpenPR

	if r.dryRun {
		log.Info(
			"dry run: skipping push and pull request",
			"direct", direct,
			"conflicts", len(res.ConflictFiles),
		)

		res.Outcome = OutcomeDryRun

		return res, nil
	}

	if direct {
		if err := r.pushDirect(ctx, repo, res.Branch); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
		}

		log.Info("pushed merge to primary branch")

		res.Merged = true
		res.Outcome = OutcomePushedDirect

		return res, nil
	}

	if err := repo.ForcePush(ctx, res.Branch); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	pr, err := r.openPR(ctx, log, code, res)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	res.PullRequest = pr
	res.Outcome = OutcomePROpened

	return res, nil
}

// pushDirect merges branch into the primary branch and
// pushes it.
func (r *Runner) pushDirect(
	ctx context.Context,
	repo *git.Repo,
	branch string,
) error {
	primary := r.cfg.PrimaryBranch

	if err := repo.Checkout(ctx, primary); err != nil {
		return err
	}

	if err := repo.Merge(ctx, branch); err != nil {
		return err
	}

	return repo.Push(ctx, primary)
}

// openPR creates the pull request for the pushed sync
// branch and asks reviewers to look at it.
func (r *Runner) openPR(
	ctx context.Context,
	log *slog.Logger,
	code string,
	res *Result,
) (*git.PullRequest, error) {
	provider, err := r.newProvider(r.cfg.RepoName(code))
	if err != nil {
		return nil, fmt.Errorf("pull request provider: %w", err)
	}

	body := prbody.Body(prbody.Data{
		Org:            r.cfg.Org,
		MainRepo:       r.cfg.MainRepoName(),
		WebURL:         r.cfg.WebURL,
		PrimaryBranch:  r.cfg.PrimaryBranch,
		UpstreamBranch: r.cfg.UpstreamBranch,
		ShortHash:      res.ShortHash,
		ConflictFiles:  res.ConflictFiles,
	})

	pr, err := provider.CreatePR(ctx, git.NewPR{
		Title: prbody.Title(res.ShortHash),
		Body:  body,
		Head:  res.Branch,
		Base:  r.cfg.PrimaryBranch,
	})
	if err != nil {
		var httpErr *git.HTTPError
		if errors.As(err, &httpErr) {
			log.Error(
				"pull request rejected",
				"status", httpErr.StatusCode,
				"message", httpErr.Message,
				"errors", httpErr.Errors,
			)
		}

		return nil, err
	}

	log.Info(
		"opened pull request",
		"number", pr.Number,
		"url", pr.URL,
		"conflicts", len(res.ConflictFiles),
	)

	r.requestReviewers(ctx, log, provider, pr.Number)

	return pr, nil
}

// requestReviewers asks a random subset of the configured
// reviewers to review pull request number. Failures are
// only logged since the pull request already exists.
func (r *Runner) requestReviewers(
	ctx context.Context,
	log *slog.Logger,
	provider git.PRProvider,
	number int,
) {
	requester, ok := provider.(git.ReviewRequester)
	if !ok || len(r.cfg.Reviewers) == 0 {
		return
	}

	reviewers := pickReviewers(
		r.rand, r.cfg.Reviewers, r.cfg.ReviewerLimit(),
	)
	if len(reviewers) == 0 {
		return
	}

	if err := requester.RequestReviewers(
		ctx, number, reviewers,
	); err != nil {
		log.Warn(
			"failed to request reviewers",
			"reviewers", reviewers,
			"error", err,
		)

		return
	}

	log.Info("requested reviewers", "reviewers", reviewers)
}

// pickReviewers returns up to n distinct entries of
// candidates in random order.
func pickReviewers(
	rng *rand.Rand,
	candidates []string,
	n int,
) []string {
	if n > len(candidates) {
		n = len(candidates)
	}

	if n <= 0 {
		return nil
	}

	picked := make([]string, 0, n)
	for _, i := range rng.Perm(len(candidates))[:n] {
		picked = append(picked, candidates[i])
	}

	return picked
}
