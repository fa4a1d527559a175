package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/byte4ever/langsync/langsync/config"
	"github.com/byte4ever/langsync/langsync/git"
)

// Provisioner keeps one working copy per language
// cloned, wired to its remotes, and level with origin.
type Provisioner struct {
	cfg *config.Config

	// OriginURL maps a language code to the translated
	// repository clone URL.
	OriginURL func(code string) string
	// UpstreamURL returns the source repository clone
	// URL.
	UpstreamURL func() string
}

// New returns a Provisioner deriving remote URLs from
// cfg.
func New(cfg *config.Config) *Provisioner {
	return &Provisioner{
		cfg:         cfg,
		OriginURL:   cfg.OriginURL,
		UpstreamURL: cfg.UpstreamURL,
	}
}

// EnsureRepoUpToDate guarantees that the working copy
// for code exists, has origin and upstream remotes
// pointing at the configured URLs, and has its primary
// branch checked out at origin's tip with no local
// changes or in-progress merge.
func (p *Provisioner) EnsureRepoUpToDate(
	ctx context.Context,
	code string,
) error {
	const errCtx = "ensuring repo is up to date"

	if err := config.ValidateLanguage(code); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	dir := p.cfg.RepoDir(code)
	originURL := p.OriginURL(code)
	auth := p.auth(originURL)

	repo, err := p.openOrClone(ctx, dir, originURL, auth)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	wc := git.NewRepo(dir)

	if err := ensureRemote(
		repo, wc.OriginRemote, originURL,
	); err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	if err := ensureRemote(
		repo, wc.UpstreamRemote, p.UpstreamURL(),
	); err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	primary := p.cfg.PrimaryBranch
	refSpec := gitconfig.RefSpec(fmt.Sprintf(
		"+refs/heads/%s:refs/remotes/%s/%s",
		primary, wc.OriginRemote, primary,
	))

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: wc.OriginRemote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf(
			"%s: %s: fetch origin: %w", errCtx, code, err,
		)
	}

	if err := wc.ResetBranch(
		ctx, primary, wc.OriginRemote+"/"+primary,
	); err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, code, err)
	}

	slog.Debug(
		"working copy ready",
		"lang", code,
		"dir", dir,
	)

	return nil
}

// openOrClone opens the repository at dir, cloning
// originURL into it first when it does not exist.
func (p *Provisioner) openOrClone(
	ctx context.Context,
	dir string,
	originURL string,
	auth transport.AuthMethod,
) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}

	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}

	if err := os.MkdirAll(p.cfg.RepoRoot, 0o750); err != nil {
		return nil, fmt.Errorf("create repo root: %w", err)
	}

	slog.Info("cloning", "url", originURL, "dir", dir)

	repo, err = gogit.PlainCloneContext(
		ctx, dir, false,
		&gogit.CloneOptions{
			URL:        originURL,
			RemoteName: "origin",
			ReferenceName: plumbing.NewBranchReferenceName(
				p.cfg.PrimaryBranch,
			),
			Auth: auth,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", originURL, err)
	}

	return repo, nil
}

// auth returns HTTPS credentials for url when a token is
// configured. Other transports rely on the environment.
func (p *Provisioner) auth(url string) transport.AuthMethod {
	token := p.cfg.AccessToken()
	if token == "" || !strings.HasPrefix(url, "https://") {
		return nil
	}

	return &githttp.BasicAuth{
		Username: p.cfg.TransportUser(),
		Password: token,
	}
}

// ensureRemote creates remote name pointing at url, or
// recreates it when it points elsewhere.
func ensureRemote(
	repo *gogit.Repository,
	name string,
	url string,
) error {
	remote, err := repo.Remote(name)

	switch {
	case errors.Is(err, gogit.ErrRemoteNotFound):
	case err != nil:
		return fmt.Errorf("read remote %s: %w", name, err)
	default:
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == url {
			return nil
		}

		slog.Info(
			"updating remote",
			"remote", name,
			"from", urls,
			"to", url,
		)

		if err := repo.DeleteRemote(name); err != nil {
			return fmt.Errorf("delete remote %s: %w", name, err)
		}
	}

	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{url},
	}); err != nil {
		return fmt.Errorf("create remote %s: %w", name, err)
	}

	return nil
}
