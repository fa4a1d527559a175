package main

import (
	"fmt"

	"github.com/byte4ever/langsync/langsync/config"
	"github.com/byte4ever/langsync/langsync/git"
	"github.com/byte4ever/langsync/langsync/git/bitbucket"
	"github.com/byte4ever/langsync/langsync/git/github"
	"github.com/byte4ever/langsync/langsync/git/gitlab"
)

// newPRProvider creates the pull request provider for
// the translated repository repo on the configured
// server. Pattern: Factory -- selects platform
// implementation at runtime.
func newPRProvider(
	cfg *config.Config,
	repo string,
) (git.PRProvider, error) {
	const errCtx = "creating pull request provider"

	switch cfg.Server {
	case config.ServerGitHub:
		p, err := github.NewProvider(github.Config{
			RepoOwner:      cfg.Org,
			Repo:           repo,
			AccessToken:    cfg.GitHub.AccessToken,
			EnterpriseHost: cfg.GitHub.EnterpriseHost,
			APIURL:         cfg.GitHub.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return p, nil

	case config.ServerGitLab:
		p, err := gitlab.NewProvider(gitlab.Config{
			Host:        cfg.GitLab.Host,
			Repo:        cfg.Org + "/" + repo,
			AccessToken: cfg.GitLab.AccessToken,
		})
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return p, nil

	case config.ServerBitbucket:
		p, err := bitbucket.NewProvider(
			bitbucket.Config{
				BaseURL:  cfg.Bitbucket.BaseURL,
				Project:  cfg.Bitbucket.Project,
				Repo:     repo,
				User:     cfg.Bitbucket.User,
				Password: cfg.Bitbucket.Password,
			},
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return p, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown server %q", errCtx, cfg.Server,
		)
	}
}
