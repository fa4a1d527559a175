package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/byte4ever/langsync/langsync/exec"
)

const (
	// upToDateMarker is printed by git when the merge
	// brought nothing new.
	upToDateMarker = "Already up to date."
	// legacyUpToDateMarker is the spelling used by git
	// releases before 2.16.
	legacyUpToDateMarker = "Already up-to-date."
	// conflictMarker ends the output of a merge that
	// stopped on conflicts.
	conflictMarker = "Automatic merge failed; " +
		"fix conflicts and then commit the result."
)

// gitEnv pins git's messages to English; pull outcomes
// are recognised by their text.
var gitEnv = []string{"LC_ALL=C", "LANGUAGE="}

// PullOutcome classifies the result of Repo.Pull.
type PullOutcome int

const (
	// PullMerged means the merge completed cleanly.
	PullMerged PullOutcome = iota
	// PullUpToDate means there was nothing to merge.
	PullUpToDate
	// PullConflicted means the merge stopped with
	// unmerged paths left in the working tree.
	PullConflicted
)

// String returns a short name for the outcome.
func (o PullOutcome) String() string {
	switch o {
	case PullMerged:
		return "merged"
	case PullUpToDate:
		return "up-to-date"
	case PullConflicted:
		return "conflicted"
	default:
		return fmt.Sprintf("PullOutcome(%d)", int(o))
	}
}

// Repo is a local working copy bound to an origin remote
// (the repository we push to) and an upstream remote (the
// repository we merge from).
type Repo struct {
	// Dir is the filesystem location of the clone.
	Dir string
	// OriginRemote is the name of the remote we push to.
	OriginRemote string
	// UpstreamRemote is the name of the remote we merge
	// from.
	UpstreamRemote string
}

// NewRepo returns a Repo for dir using the conventional
// "origin" and "upstream" remote names.
func NewRepo(dir string) *Repo {
	return &Repo{
		Dir:            dir,
		OriginRemote:   "origin",
		UpstreamRemote: "upstream",
	}
}

func (r *Repo) git(
	ctx context.Context,
	args ...string,
) (string, error) {
	return exec.ExEnv(ctx, r.Dir, gitEnv, "git", args...)
}

// FetchUpstream fetches branch from the upstream remote.
func (r *Repo) FetchUpstream(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "fetching upstream"

	if _, err := r.git(
		ctx, "fetch", r.UpstreamRemote, branch,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// RevParse resolves ref to a full commit hash.
func (r *Repo) RevParse(
	ctx context.Context,
	ref string,
) (string, error) {
	const errCtx = "resolving revision"

	out, err := r.git(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf(
			"%s %s: %w", errCtx, ref, err,
		)
	}

	return strings.TrimSpace(out), nil
}

// RecreateBranch creates branch from start, or resets it
// to start if it already exists, and checks it out.
func (r *Repo) RecreateBranch(
	ctx context.Context,
	branch string,
	start string,
) error {
	const errCtx = "recreating branch"

	if _, err := r.git(
		ctx, "checkout", "-B", branch, start,
	); err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return nil
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "checking out branch"

	if _, err := r.git(ctx, "checkout", branch); err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return nil
}

// PullUpstream merges branch of the upstream remote into
// the current branch. A merge that stops on conflicts is
// reported as PullConflicted rather than as an error; the
// conflicted state is left in the working tree. The
// command output is returned in every case.
func (r *Repo) PullUpstream(
	ctx context.Context,
	branch string,
) (PullOutcome, string, error) {
	const errCtx = "pulling upstream"

	out, err := r.git(
		ctx,
		"pull", "--no-rebase", "--no-edit",
		r.UpstreamRemote, branch,
	)

	outcome, err := classifyPull(out, err)
	if err != nil {
		return outcome, out, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return outcome, out, nil
}

// classifyPull maps the output and error of a pull to a
// PullOutcome. Only exit code 1 with the automatic merge
// failure message counts as a conflict; every other
// failure is returned unchanged.
func classifyPull(
	out string,
	err error,
) (PullOutcome, error) {
	if err != nil {
		cmdErr, ok := exec.AsCommandError(err)
		if ok &&
			cmdErr.ExitCode == 1 &&
			strings.HasSuffix(
				strings.TrimSpace(cmdErr.Output),
				conflictMarker,
			) {
			return PullConflicted, nil
		}

		return PullMerged, err
	}

	if strings.Contains(out, upToDateMarker) ||
		strings.Contains(out, legacyUpToDateMarker) {
		return PullUpToDate, nil
	}

	return PullMerged, nil
}

// ConflictFiles returns the paths currently in the
// unmerged state, in the order git reports them.
func (r *Repo) ConflictFiles(
	ctx context.Context,
) ([]string, error) {
	const errCtx = "listing conflict files"

	out, err := r.git(
		ctx, "diff", "--name-only", "-z", "--diff-filter=U",
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return splitPaths(out), nil
}

// splitPaths splits NUL-terminated path output, keeping
// each path byte for byte and dropping empty entries.
func splitPaths(out string) []string {
	var paths []string

	for _, p := range strings.Split(out, "\x00") {
		if p == "" {
			continue
		}

		paths = append(paths, p)
	}

	return paths
}

// Commit stages every tracked change and commits it,
// conflict markers included. Returns false when the
// tree was already clean.
func (r *Repo) Commit(
	ctx context.Context,
	message string,
) (bool, error) {
	const errCtx = "committing"

	clean, err := r.IsClean(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if clean {
		return false, nil
	}

	if _, err := r.git(
		ctx, "commit", "-a", "-m", message,
	); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return true, nil
}

// IsClean reports whether the working tree has no
// uncommitted changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	const errCtx = "checking repo status"

	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(out) == "", nil
}

// Merge merges branch into the current branch.
func (r *Repo) Merge(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "merging branch"

	if _, err := r.git(
		ctx, "merge", "--no-edit", branch,
	); err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return nil
}

// Push pushes branch to the origin remote.
func (r *Repo) Push(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "pushing branch"

	if _, err := r.git(
		ctx, "push", r.OriginRemote, branch,
	); err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return nil
}

// ForcePush force-pushes the given branches to the
// origin remote and sets them as upstream. All changes
// should be committed before calling ForcePush.
func (r *Repo) ForcePush(
	ctx context.Context,
	branches ...string,
) error {
	const errCtx = "force-pushing branches"

	args := append(
		[]string{
			"push", r.OriginRemote,
			"-f", "--set-upstream",
		},
		branches...,
	)

	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// ResetBranch discards local state and points branch at
// ref. Any in-progress merge is abandoned.
func (r *Repo) ResetBranch(
	ctx context.Context,
	branch string,
	ref string,
) error {
	const errCtx = "resetting branch"

	if _, err := r.git(ctx, "reset", "--hard"); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := r.git(
		ctx, "checkout", "-f", "-B", branch, ref,
	); err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return nil
}
