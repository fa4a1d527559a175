package gitlab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/langsync/langsync/git"
)

// Config holds the settings needed to create a GitLab
// merge request provider.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project").
	Repo string
	// AccessToken is a personal or project access
	// token used for authentication.
	AccessToken string
}

// Provider creates merge requests on GitLab.
//
// Pattern: Strategy -- implements git.PRProvider.
type Provider struct {
	client *gl.Client
	repo   string
}

// NewProvider validates cfg and returns a Provider
// ready to create merge requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	client, err := gl.NewClient(
		cfg.AccessToken,
		gl.WithBaseURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Provider{
		client: client,
		repo:   cfg.Repo,
	}, nil
}

// CreatePR creates a merge request from pr.Head into
// pr.Base. The merge request IID is reported as the
// pull request number.
func (p *Provider) CreatePR(
	ctx context.Context,
	pr git.NewPR,
) (*git.PullRequest, error) {
	const errCtx = "creating gitlab merge request"

	opts := gl.CreateMergeRequestOptions{
		Title:        gl.Ptr(pr.Title),
		Description:  gl.Ptr(pr.Body),
		SourceBranch: gl.Ptr(pr.Head),
		TargetBranch: gl.Ptr(pr.Base),
	}

	created, _, err := p.client.MergeRequests.CreateMergeRequest(
		p.repo, &opts, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, toHTTPError(err),
		)
	}

	slog.Info(
		"created merge request",
		"repo", p.repo,
		"iid", created.IID,
		"url", created.WebURL,
	)

	return &git.PullRequest{
		Number: int(created.IID),
		URL:    created.WebURL,
	}, nil
}

// toHTTPError converts a GitLab error response into a
// *git.HTTPError. Other errors are returned as is.
func toHTTPError(err error) error {
	var errResp *gl.ErrorResponse
	if !errors.As(err, &errResp) {
		return err
	}

	httpErr := &git.HTTPError{
		Message: errResp.Message,
		Err:     err,
	}

	if errResp.Response != nil {
		httpErr.StatusCode = errResp.Response.StatusCode
	}

	return httpErr
}
