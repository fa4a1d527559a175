// Package gittest builds throwaway git repositories for
// tests: a source-language upstream, a bare translated
// origin, and a working copy wired to both.
package gittest

import (
	"context"
	"os"
	oe "os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Branch is the primary branch used by every fixture
// repository.
const Branch = "master"

// Fixture is a set of related repositories.
type Fixture struct {
	// Upstream is a non-bare repository standing in for
	// the source-language repository.
	Upstream string
	// Origin is a bare repository standing in for the
	// translated repository.
	Origin string
	// Work is the local working copy with remotes origin
	// and upstream. Empty until Clone is called.
	Work string
}

// NewRemotes creates the upstream and origin
// repositories. Both share an initial commit holding
// article.md and task.md.
func NewRemotes(tb testing.TB) *Fixture {
	tb.Helper()

	root := tb.TempDir()

	return NewRemotesAt(
		tb,
		filepath.Join(root, "upstream"),
		filepath.Join(root, "origin.git"),
	)
}

// NewRemotesAt is NewRemotes with explicit locations.
func NewRemotesAt(
	tb testing.TB,
	upstream string,
	origin string,
) *Fixture {
	tb.Helper()

	f := &Fixture{
		Upstream: upstream,
		Origin:   origin,
	}

	Init(tb, f.Upstream)
	WriteFile(tb, f.Upstream, "article.md", "# Article\n\nHello\n")
	WriteFile(tb, f.Upstream, "task.md", "# Task\n\nDo it\n")
	Git(tb, f.Upstream, "add", ".")
	Git(tb, f.Upstream, "commit", "-m", "initial content")

	Git(tb, filepath.Dir(f.Upstream), "clone", "--bare", f.Upstream, f.Origin)

	return f
}

// New creates the remotes and clones the working copy
// into workDir (a fresh temp dir when empty).
func New(tb testing.TB, workDir string) *Fixture {
	tb.Helper()

	f := NewRemotes(tb)
	f.Clone(tb, workDir)

	return f
}

// Clone clones origin into workDir and adds the upstream
// remote.
func (f *Fixture) Clone(tb testing.TB, workDir string) {
	tb.Helper()

	if workDir == "" {
		workDir = filepath.Join(tb.TempDir(), "work")
	}

	if err := os.MkdirAll(filepath.Dir(workDir), 0o750); err != nil {
		tb.Fatalf("create parent of %s: %v", workDir, err)
	}

	Git(tb, filepath.Dir(workDir), "clone", f.Origin, workDir)
	Configure(tb, workDir)
	Git(tb, workDir, "remote", "add", "upstream", f.Upstream)

	f.Work = workDir
}

// CommitUpstream writes name in the upstream repository
// and commits it.
func (f *Fixture) CommitUpstream(
	tb testing.TB,
	name string,
	content string,
) {
	tb.Helper()

	CommitFile(tb, f.Upstream, name, content)
}

// CommitTranslation writes name in the working copy on
// the primary branch, commits it, and pushes it to
// origin.
func (f *Fixture) CommitTranslation(
	tb testing.TB,
	name string,
	content string,
) {
	tb.Helper()

	Git(tb, f.Work, "checkout", Branch)
	CommitFile(tb, f.Work, name, content)
	Git(tb, f.Work, "push", "origin", Branch)
}

// OriginRev resolves ref inside the origin repository.
// Returns empty string when ref does not exist.
func (f *Fixture) OriginRev(tb testing.TB, ref string) string {
	tb.Helper()

	out, err := run(f.Origin, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(out)
}

// UpstreamHead returns the full hash of the upstream
// primary branch.
func (f *Fixture) UpstreamHead(tb testing.TB) string {
	tb.Helper()

	return strings.TrimSpace(Git(tb, f.Upstream, "rev-parse", Branch))
}

// Init creates a repository on the primary branch with
// hooks disabled.
func Init(tb testing.TB, dir string) {
	tb.Helper()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		tb.Fatalf("create %s: %v", dir, err)
	}

	Git(tb, dir, "init", "-b", Branch)
	Configure(tb, dir)
}

// Configure sets a local identity and disables hooks and
// signing so the host configuration cannot interfere.
func Configure(tb testing.TB, dir string) {
	tb.Helper()

	cmds := [][]string{
		{"config", "user.email", "test@test.com"},
		{"config", "user.name", "Test"},
		{"config", "core.hooksPath", "/dev/null"},
		{"config", "commit.gpgsign", "false"},
	}

	for _, args := range cmds {
		Git(tb, dir, args...)
	}
}

// WriteFile writes content to name below dir.
func WriteFile(
	tb testing.TB,
	dir string,
	name string,
	content string,
) {
	tb.Helper()

	fp := filepath.Join(dir, name)

	if err := os.MkdirAll(filepath.Dir(fp), 0o750); err != nil {
		tb.Fatalf("create parent of %s: %v", fp, err)
	}

	if err := os.WriteFile(fp, []byte(content), 0o600); err != nil {
		tb.Fatalf("write %s: %v", fp, err)
	}
}

// CommitFile writes name below dir and commits it on the
// current branch.
func CommitFile(
	tb testing.TB,
	dir string,
	name string,
	content string,
) {
	tb.Helper()

	WriteFile(tb, dir, name, content)
	Git(tb, dir, "add", name)
	Git(tb, dir, "commit", "-m", "update "+name)
}

// Git runs a git command in dir and fails the test on
// error.
func Git(tb testing.TB, dir string, args ...string) string {
	tb.Helper()

	out, err := run(dir, args...)
	if err != nil {
		tb.Fatalf("git %v failed: %s: %v", args, out, err)
	}

	return out
}

func run(dir string, args ...string) (string, error) {
	//nolint:gosec // test helper
	cmd := oe.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()

	return string(out), err
}
