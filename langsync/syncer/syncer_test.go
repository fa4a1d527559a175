package syncer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/langsync/langsync/config"
	"github.com/byte4ever/langsync/langsync/git"
	"github.com/byte4ever/langsync/langsync/internal/gittest"
	"github.com/byte4ever/langsync/langsync/provision"
	"github.com/byte4ever/langsync/langsync/syncer"
)

const (
	org    = "javascript-tutorial"
	suffix = "javascript.info"
)

type fakeProvider struct {
	prs       []git.NewPR
	reviewers [][]string
	err       error
	reviewErr error
}

func (f *fakeProvider) CreatePR(
	_ context.Context,
	pr git.NewPR,
) (*git.PullRequest, error) {
	f.prs = append(f.prs, pr)
	if f.err != nil {
		return nil, f.err
	}

	return &git.PullRequest{
		Number: 7,
		URL:    "https://github.com/" + org + "/ru." + suffix + "/pull/7",
	}, nil
}

func (f *fakeProvider) RequestReviewers(
	_ context.Context,
	_ int,
	reviewers []string,
) error {
	f.reviewers = append(f.reviewers, reviewers)

	return f.reviewErr
}

type env struct {
	cfg *config.Config
	fx  *gittest.Fixture
	dir string
	// prepare runs after provisioning, before the
	// sync proper.
	prepare func(dir string)
}

func newEnv(t *testing.T) *env {
	t.Helper()

	root := t.TempDir()
	remotes := filepath.Join(root, "remotes")

	fx := gittest.NewRemotesAt(
		t,
		filepath.Join(remotes, org, "en."+suffix),
		filepath.Join(remotes, org, "ru."+suffix),
	)

	// Contributor working copy used to push translations.
	fx.Clone(t, "")

	cfg := &config.Config{
		Org:        org,
		RepoSuffix: suffix,
		RepoRoot:   filepath.Join(root, "repos"),
		CloneURL:   remotes,
	}
	cfg.ApplyDefaults()

	return &env{
		cfg: cfg,
		fx:  fx,
		dir: cfg.RepoDir("ru"),
	}
}

func (e *env) provisioner(t *testing.T) syncer.Provisioner {
	t.Helper()

	pv := provision.New(e.cfg)

	return syncer.ProvisionerFunc(func(
		ctx context.Context,
		code string,
	) error {
		if err := pv.EnsureRepoUpToDate(ctx, code); err != nil {
			return err
		}

		gittest.Configure(t, e.cfg.RepoDir(code))

		if e.prepare != nil {
			e.prepare(e.cfg.RepoDir(code))
		}

		return nil
	})
}

func (e *env) runner(
	t *testing.T,
	fp *fakeProvider,
	opts ...syncer.Option,
) *syncer.Runner {
	t.Helper()

	factory := func(repo string) (git.PRProvider, error) {
		assert.Equal(t, "ru."+suffix, repo)

		return fp, nil
	}

	return syncer.NewRunner(e.cfg, e.provisioner(t), factory, opts...)
}

func (e *env) noProviderRunner(
	t *testing.T,
	opts ...syncer.Option,
) *syncer.Runner {
	t.Helper()

	factory := func(string) (git.PRProvider, error) {
		t.Error("pull request provider must not be used")

		return nil, errors.New("unexpected")
	}

	return syncer.NewRunner(e.cfg, e.provisioner(t), factory, opts...)
}

// conflict makes the translation and upstream disagree
// on both tracked files.
func (e *env) conflict(t *testing.T) {
	t.Helper()

	e.fx.CommitTranslation(t, "article.md", "# Статья\n\nПривет\n")
	e.fx.CommitTranslation(t, "task.md", "# Задача\n\nСделай\n")
	e.fx.CommitUpstream(t, "article.md", "# Article\n\nHello world\n")
	e.fx.CommitUpstream(t, "task.md", "# Task\n\nDo it now\n")
}

func (e *env) syncBranch(t *testing.T) string {
	t.Helper()

	return "sync-" + e.fx.UpstreamHead(t)[:8]
}

func lastCommitMessage(t *testing.T, dir string) string {
	t.Helper()

	return strings.TrimSpace(
		gittest.Git(t, dir, "log", "-1", "--pretty=%B"),
	)
}

func TestRunner_Sync_up_to_date(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	masterBefore := e.fx.OriginRev(t, "refs/heads/master")

	res, err := e.noProviderRunner(t).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomeUpToDate, res.Outcome)
	assert.Equal(t, e.syncBranch(t), res.Branch)
	assert.Equal(t, e.fx.UpstreamHead(t)[:8], res.ShortHash)
	assert.False(t, res.Merged)
	assert.Nil(t, res.PullRequest)
	assert.Empty(t, e.fx.OriginRev(t, "refs/heads/"+res.Branch))
	assert.Equal(t, masterBefore, e.fx.OriginRev(t, "refs/heads/master"))
}

func TestRunner_Sync_clean_merge_pushes_master(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.fx.CommitUpstream(t, "new.md", "# New\n")

	res, err := e.noProviderRunner(t).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePushedDirect, res.Outcome)
	assert.True(t, res.Merged)
	assert.Empty(t, res.ConflictFiles)
	assert.Nil(t, res.PullRequest)
	assert.Equal(
		t,
		e.fx.UpstreamHead(t),
		e.fx.OriginRev(t, "refs/heads/master"),
	)
	assert.Empty(t, e.fx.OriginRev(t, "refs/heads/"+res.Branch))
}

func TestRunner_Sync_clean_merge_with_translations(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.fx.CommitTranslation(t, "article.md", "# Статья\n\nПривет\n")
	e.fx.CommitUpstream(t, "new.md", "# New\n")

	res, err := e.noProviderRunner(t).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePushedDirect, res.Outcome)

	master := e.fx.OriginRev(t, "refs/heads/master")
	gittest.Git(
		t, e.fx.Origin,
		"merge-base", "--is-ancestor", e.fx.UpstreamHead(t), master,
	)

	article := gittest.Git(t, e.fx.Origin, "show", master+":article.md")
	assert.Equal(t, "# Статья\n\nПривет\n", article)
}

func TestRunner_Sync_conflicts_open_pr(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)

	fp := &fakeProvider{}

	res, err := e.runner(t, fp).Sync(context.Background(), "ru")

	require.NoError(t, err)

	branch := e.syncBranch(t)
	short := e.fx.UpstreamHead(t)[:8]

	assert.Equal(t, syncer.OutcomePROpened, res.Outcome)
	assert.Equal(t, branch, res.Branch)
	assert.Equal(t, []string{"article.md", "task.md"}, res.ConflictFiles)
	assert.False(t, res.Merged)
	require.NotNil(t, res.PullRequest)
	assert.Equal(t, 7, res.PullRequest.Number)

	head := strings.TrimSpace(gittest.Git(t, e.dir, "rev-parse", "HEAD"))
	assert.Equal(t, head, e.fx.OriginRev(t, "refs/heads/"+branch))
	assert.Equal(t, syncer.CommitMessage, lastCommitMessage(t, e.dir))

	require.Len(t, fp.prs, 1)

	pr := fp.prs[0]
	assert.Equal(t, "Sync with upstream @ "+short, pr.Title)
	assert.Equal(t, branch, pr.Head)
	assert.Equal(t, "master", pr.Base)

	var checklist []string

	for _, line := range strings.Split(pr.Body, "\n") {
		if strings.HasPrefix(line, " * [ ] ") {
			checklist = append(checklist, line)
		}
	}

	assert.Equal(
		t,
		[]string{
			" * [ ] [article.md](/" + org + "/en." + suffix +
				"/commits/master/article.md)",
			" * [ ] [task.md](/" + org + "/en." + suffix +
				"/commits/master/task.md)",
		},
		checklist,
	)
	assert.Contains(
		t,
		pr.Body,
		"[en."+suffix+"](https://github.com/"+org+"/en."+suffix+
			"/commits/master) at "+short,
	)
	assert.Empty(t, fp.reviewers)
}

func TestRunner_Sync_rerun_reuses_branch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.conflict(t)

	fp := &fakeProvider{}
	rn := e.runner(t, fp)

	first, err := rn.Sync(ctx, "ru")
	require.NoError(t, err)

	second, err := rn.Sync(ctx, "ru")
	require.NoError(t, err)

	assert.Equal(t, first.Branch, second.Branch)
	require.Len(t, fp.prs, 2)
	assert.Equal(t, fp.prs[0].Head, fp.prs[1].Head)

	head := strings.TrimSpace(gittest.Git(t, e.dir, "rev-parse", "HEAD"))
	assert.Equal(t, head, e.fx.OriginRev(t, "refs/heads/"+second.Branch))
}

func TestRunner_Sync_requests_reviewers(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)
	e.cfg.Reviewers = []string{"alice", "bob", "carol"}
	two := 2
	e.cfg.ReviewerCount = &two

	fp := &fakeProvider{}

	res, err := e.runner(
		t, fp, syncer.WithRand(rand.New(rand.NewPCG(1, 2))),
	).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePROpened, res.Outcome)
	require.Len(t, fp.reviewers, 1)

	got := fp.reviewers[0]
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0], got[1])
	assert.Subset(t, e.cfg.Reviewers, got)
}

func TestRunner_Sync_zero_reviewer_count(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)
	e.cfg.Reviewers = []string{"alice", "bob"}

	zero := 0
	e.cfg.ReviewerCount = &zero

	fp := &fakeProvider{}

	res, err := e.runner(t, fp).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePROpened, res.Outcome)
	assert.Empty(t, fp.reviewers)
}

func TestRunner_Sync_reviewer_failure_is_not_fatal(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)
	e.cfg.Reviewers = []string{"alice"}

	fp := &fakeProvider{reviewErr: errors.New("no such user")}

	res, err := e.runner(t, fp).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePROpened, res.Outcome)
	assert.Equal(t, [][]string{{"alice"}}, fp.reviewers)
}

func TestRunner_Sync_pr_http_error(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)

	fp := &fakeProvider{err: fmt.Errorf("creating pull request: %w", &git.HTTPError{
		StatusCode: 422,
		Message:    "Validation Failed",
		Errors:     []string{"A pull request already exists"},
	})}

	var logs bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	res, err := e.runner(
		t, fp, syncer.WithLogger(logger),
	).Sync(context.Background(), "ru")

	assert.Nil(t, res)

	var httpErr *git.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 422, httpErr.StatusCode)
	assert.Equal(
		t,
		[]string{"A pull request already exists"},
		httpErr.Errors,
	)

	// The branch is pushed before the pull request is
	// requested.
	assert.NotEmpty(t, e.fx.OriginRev(t, "refs/heads/"+e.syncBranch(t)))

	var rejected map[string]any

	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))

		if rec["msg"] == "pull request rejected" {
			rejected = rec
		}
	}

	require.NotNil(t, rejected, "rejection not logged: %s", logs.String())
	assert.Equal(t, "ERROR", rejected["level"])
	assert.Equal(t, "ru", rejected["lang"])
	assert.InDelta(t, 422, rejected["status"], 0)
	assert.Equal(t, "Validation Failed", rejected["message"])
	assert.Equal(
		t,
		[]any{"A pull request already exists"},
		rejected["errors"],
	)
	assert.Contains(t, logs.String(), `"errors":["A pull request already exists"]`)
}

func TestRunner_Sync_pull_failure(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.fx.CommitUpstream(t, "new.md", "# New\n")

	// An untracked file in the way makes git refuse the
	// merge without reporting conflicts.
	e.prepare = func(dir string) {
		gittest.WriteFile(t, dir, "new.md", "local scratch\n")
	}

	masterBefore := e.fx.OriginRev(t, "refs/heads/master")

	res, err := e.noProviderRunner(t).Sync(context.Background(), "ru")

	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorContains(t, err, "pulling upstream")
	assert.NotEqual(t, syncer.CommitMessage, lastCommitMessage(t, e.dir))
	assert.Empty(t, e.fx.OriginRev(t, "refs/heads/"+e.syncBranch(t)))
	assert.Equal(t, masterBefore, e.fx.OriginRev(t, "refs/heads/master"))
}

func TestRunner_Sync_always_open_pr(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.cfg.AlwaysOpenPR = true
	e.fx.CommitUpstream(t, "new.md", "# New\n")

	masterBefore := e.fx.OriginRev(t, "refs/heads/master")
	fp := &fakeProvider{}

	res, err := e.runner(t, fp).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePROpened, res.Outcome)
	assert.Empty(t, res.ConflictFiles)
	require.Len(t, fp.prs, 1)
	assert.Contains(t, fp.prs[0].Body, "No conflicts were found.")
	assert.NotContains(t, fp.prs[0].Body, " * [ ] ")
	assert.Equal(t, masterBefore, e.fx.OriginRev(t, "refs/heads/master"))
	assert.Equal(
		t,
		e.fx.UpstreamHead(t),
		e.fx.OriginRev(t, "refs/heads/"+res.Branch),
	)
}

func TestRunner_Sync_dry_run(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)

	res, err := e.noProviderRunner(
		t, syncer.WithDryRun(true),
	).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomeDryRun, res.Outcome)
	assert.Equal(t, []string{"article.md", "task.md"}, res.ConflictFiles)
	assert.Equal(t, syncer.CommitMessage, lastCommitMessage(t, e.dir))
	assert.Empty(t, e.fx.OriginRev(t, "refs/heads/"+res.Branch))
}

func TestRunner_Sync_provision_failure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cfg := &config.Config{RepoRoot: t.TempDir(), RepoSuffix: suffix}
	cfg.ApplyDefaults()

	rn := syncer.NewRunner(
		cfg,
		syncer.ProvisionerFunc(func(context.Context, string) error {
			return boom
		}),
		nil,
	)

	res, err := rn.Sync(context.Background(), "ru")

	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestRunner_Sync_provider_factory_failure(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.conflict(t)

	noToken := errors.New("access token must be set")

	rn := syncer.NewRunner(
		e.cfg,
		e.provisioner(t),
		func(string) (git.PRProvider, error) {
			return nil, noToken
		},
	)

	res, err := rn.Sync(context.Background(), "ru")

	assert.Nil(t, res)
	assert.ErrorIs(t, err, noToken)
}

func TestRunner_Sync_invalid_language(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RepoRoot: t.TempDir(), RepoSuffix: suffix}
	cfg.ApplyDefaults()

	rn := syncer.NewRunner(
		cfg,
		syncer.ProvisionerFunc(func(context.Context, string) error {
			t.Error("provisioner must not be called")

			return nil
		}),
		nil,
	)

	_, err := rn.Sync(context.Background(), "")

	assert.ErrorIs(t, err, config.ErrInvalidLanguage)
}

func TestPickReviewers(t *testing.T) {
	t.Parallel()

	candidates := []string{"alice", "bob", "carol", "dave"}

	tests := []struct {
		name       string
		candidates []string
		n          int
		wantLen    int
	}{
		{name: "subset", candidates: candidates, n: 3, wantLen: 3},
		{name: "all", candidates: candidates, n: 4, wantLen: 4},
		{name: "more than available", candidates: candidates, n: 9, wantLen: 4},
		{name: "zero", candidates: candidates, n: 0, wantLen: 0},
		{name: "negative", candidates: candidates, n: -1, wantLen: 0},
		{name: "no candidates", n: 3, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewPCG(42, 42))
			got := syncer.PickReviewersForTest(rng, tt.candidates, tt.n)

			assert.Len(t, got, tt.wantLen)
			assert.Subset(t, tt.candidates, got)

			seen := make(map[string]struct{}, len(got))
			for _, r := range got {
				seen[r] = struct{}{}
			}

			assert.Len(t, seen, len(got))
		})
	}
}

// setGermanGit makes git print German messages unless it
// is told otherwise.
func setGermanGit(t *testing.T) {
	t.Helper()

	t.Setenv("LC_ALL", "")
	t.Setenv("LANG", "C.UTF-8")
	t.Setenv("LANGUAGE", "de")
}

// These tests change the process environment and do not
// run in parallel.

func TestRunner_Sync_non_english_locale_conflicts(t *testing.T) {
	setGermanGit(t)

	e := newEnv(t)
	e.conflict(t)

	fp := &fakeProvider{}

	res, err := e.runner(t, fp).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomePROpened, res.Outcome)
	assert.Equal(t, []string{"article.md", "task.md"}, res.ConflictFiles)
	require.Len(t, fp.prs, 1)
}

func TestRunner_Sync_non_english_locale_up_to_date(t *testing.T) {
	setGermanGit(t)

	e := newEnv(t)
	masterBefore := e.fx.OriginRev(t, "refs/heads/master")

	res, err := e.noProviderRunner(t).Sync(context.Background(), "ru")

	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomeUpToDate, res.Outcome)
	assert.False(t, res.Merged)
	assert.Equal(t, masterBefore, e.fx.OriginRev(t, "refs/heads/master"))
}
