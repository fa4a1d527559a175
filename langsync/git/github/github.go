package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/byte4ever/langsync/langsync/git"
)

// Config holds the settings needed to create a GitHub
// pull request provider.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// APIURL overrides the REST endpoint entirely
	// (e.g. "http://127.0.0.1:8080/"). Takes
	// precedence over EnterpriseHost.
	APIURL string
}

// Provider creates pull requests on GitHub.
//
// Pattern: Strategy -- implements git.PRProvider and
// git.ReviewRequester.
type Provider struct {
	client    *gh.Client
	repoOwner string
	repo      string
}

// NewProvider validates cfg and returns a Provider
// ready to create pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf(
			"%s: repo owner must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.AccessToken},
	)
	client := gh.NewClient(
		oauth2.NewClient(context.Background(), ts),
	)

	baseURL, uploadURL := "", ""

	switch {
	case cfg.APIURL != "":
		baseURL, uploadURL = cfg.APIURL, cfg.APIURL
	case cfg.EnterpriseHost != "":
		baseURL = "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL = "https://" +
			cfg.EnterpriseHost + "/api/uploads/"
	}

	if baseURL != "" {
		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}
	}

	return &Provider{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
	}, nil
}

// CreatePR opens a pull request from pr.Head into
// pr.Base. A rejected request is returned as a
// *git.HTTPError carrying GitHub's error list.
func (p *Provider) CreatePR(
	ctx context.Context,
	pr git.NewPR,
) (*git.PullRequest, error) {
	const errCtx = "creating github pull request"

	created, _, err := p.client.PullRequests.Create(
		ctx, p.repoOwner, p.repo,
		&gh.NewPullRequest{
			Title: gh.Ptr(pr.Title),
			Head:  gh.Ptr(pr.Head),
			Base:  gh.Ptr(pr.Base),
			Body:  gh.Ptr(pr.Body),
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, toHTTPError(err),
		)
	}

	slog.Info(
		"created pull request",
		"repo", p.repoOwner+"/"+p.repo,
		"number", created.GetNumber(),
		"url", created.GetHTMLURL(),
	)

	return &git.PullRequest{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}

// RequestReviewers asks the given users to review pull
// request number.
func (p *Provider) RequestReviewers(
	ctx context.Context,
	number int,
	reviewers []string,
) error {
	const errCtx = "requesting github reviewers"

	_, _, err := p.client.PullRequests.RequestReviewers(
		ctx, p.repoOwner, p.repo, number,
		gh.ReviewersRequest{Reviewers: reviewers},
	)
	if err != nil {
		return fmt.Errorf(
			"%s: %w", errCtx, toHTTPError(err),
		)
	}

	return nil
}

// toHTTPError converts a go-github error response into
// a *git.HTTPError. Other errors are returned as is.
func toHTTPError(err error) error {
	var errResp *gh.ErrorResponse
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

	for _, e := range errResp.Errors {
		if e.Message != "" {
			httpErr.Errors = append(httpErr.Errors, e.Message)

			continue
		}

		httpErr.Errors = append(httpErr.Errors, fmt.Sprintf(
			"%s %s %s", e.Resource, e.Field, e.Code,
		))
	}

	return httpErr
}
