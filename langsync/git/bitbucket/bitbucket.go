package bitbucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/langsync/langsync/git"
)

// Config holds the settings needed to create a
// Bitbucket pull request provider.
type Config struct {
	// BaseURL is the Bitbucket Server root URL
	// (e.g. "https://bb.example.com").
	BaseURL string
	// Project is the project key owning the
	// repository (e.g. "DOCS").
	Project string
	// Repo is the repository slug.
	Repo string
	// User is the Bitbucket API username.
	User string
	// Password is the Bitbucket API password (or
	// personal access token).
	Password string
}

// Provider creates pull requests on Bitbucket Server.
//
// Pattern: Strategy -- implements git.PRProvider.
type Provider struct {
	endpoint string
	project  string
	repo     string
	user     string
	password string
	client   *http.Client
}

type project struct {
	Key string `json:"key,omitempty"`
}

type repository struct {
	Slug    string  `json:"slug,omitempty"`
	Project project `json:"project"`
}

type pullrequestEndpoint struct {
	ID         string     `json:"id,omitempty"`
	Repository repository `json:"repository,omitempty"`
}

type pullrequest struct {
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	State       string               `json:"state,omitempty"`
	Open        bool                 `json:"open"`
	Closed      bool                 `json:"closed"`
	FromRef     *pullrequestEndpoint `json:"fromRef,omitempty"`
	ToRef       *pullrequestEndpoint `json:"toRef,omitempty"`
	Locked      bool                 `json:"locked"`
	Reviewers   []account            `json:"reviewers,omitempty"`
}

type account struct {
	User user `json:"user"`
}

type user struct {
	Name string `json:"name,omitempty"`
}

type createdPullrequest struct {
	ID    int   `json:"id"`
	Links links `json:"links"`
}

type links struct {
	Self []link `json:"self"`
}

type link struct {
	Href string `json:"href"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// NewProvider validates cfg and returns a Provider
// ready to create pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating bitbucket provider"

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf(
			"%s: base url must be set", errCtx,
		)
	}

	if cfg.Project == "" {
		return nil, fmt.Errorf(
			"%s: project must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.User == "" {
		return nil, fmt.Errorf(
			"%s: user must be set", errCtx,
		)
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf(
			"%s: password must be set", errCtx,
		)
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") +
		"/rest/api/1.0/projects/" +
		url.PathEscape(cfg.Project) +
		"/repos/" + url.PathEscape(cfg.Repo) +
		"/pull-requests"

	return &Provider{
		endpoint: endpoint,
		project:  cfg.Project,
		repo:     cfg.Repo,
		user:     cfg.User,
		password: cfg.Password,
		client:   http.DefaultClient,
	}, nil
}

// CreatePR creates a pull request from pr.Head into
// pr.Base. Any status other than 201 is returned as a
// *git.HTTPError.
func (p *Provider) CreatePR(
	ctx context.Context,
	pr git.NewPR,
) (*git.PullRequest, error) {
	const errCtx = "creating bitbucket pull request"

	repo := repository{
		Slug:    p.repo,
		Project: project{Key: p.project},
	}

	payload, err := json.Marshal(&pullrequest{
		Title:       pr.Title,
		Description: pr.Body,
		State:       "OPEN",
		Open:        true,
		FromRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + pr.Head,
			Repository: repo,
		},
		ToRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + pr.Base,
			Repository: repo,
		},
		Reviewers: []account{},
	})
	if err != nil {
		return nil, fmt.Errorf(
			"%s: marshal request: %w", errCtx, err,
		)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.endpoint,
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: build request: %w", errCtx, err,
		)
	}

	req.Header.Set(
		"Content-Type",
		"application/json; charset=utf-8",
	)
	req.SetBasicAuth(p.user, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: send request: %w", errCtx, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: read response: %w", errCtx, err,
		)
	}

	slog.Debug(
		"bitbucket response",
		"status", resp.Status,
		"body", string(rb),
	)

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, decodeError(resp, rb),
		)
	}

	var created createdPullrequest
	if err := json.Unmarshal(rb, &created); err != nil {
		return nil, fmt.Errorf(
			"%s: decode response: %w", errCtx, err,
		)
	}

	out := &git.PullRequest{Number: created.ID}
	if len(created.Links.Self) > 0 {
		out.URL = created.Links.Self[0].Href
	}

	slog.Info(
		"created pull request",
		"repo", p.project+"/"+p.repo,
		"number", out.Number,
		"url", out.URL,
	)

	return out, nil
}

// decodeError builds a *git.HTTPError from a failed
// response, keeping Bitbucket's error messages when the
// body carries them.
func decodeError(resp *http.Response, body []byte) error {
	httpErr := &git.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		for _, e := range er.Errors {
			httpErr.Errors = append(httpErr.Errors, e.Message)
		}
	}

	return httpErr
}
