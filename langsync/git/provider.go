package git

import (
	"context"
	"fmt"
	"strings"
)

// Pattern: Strategy -- swap git platform without
// changing sync logic.

// NewPR describes a pull request to open.
type NewPR struct {
	Title string
	Body  string
	// Head is the branch carrying the changes.
	Head string
	// Base is the branch the changes target.
	Base string
}

// PullRequest identifies a pull request created on a
// hosting platform.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url,omitempty"`
}

// PRProvider creates pull requests on a git hosting
// platform.
type PRProvider interface {
	CreatePR(ctx context.Context, pr NewPR) (*PullRequest, error)
}

// ReviewRequester is implemented by providers that can
// ask users to review an existing pull request.
type ReviewRequester interface {
	RequestReviewers(
		ctx context.Context,
		number int,
		reviewers []string,
	) error
}

// PRProviderFunc adapts a plain function to the
// PRProvider interface. When body is empty the title
// is used as body.
type PRProviderFunc func(
	ctx context.Context,
	pr NewPR,
) (*PullRequest, error)

// CreatePR delegates to the wrapped function. If body
// is empty, title is substituted.
func (f PRProviderFunc) CreatePR(
	ctx context.Context,
	pr NewPR,
) (*PullRequest, error) {
	if pr.Body == "" {
		pr.Body = pr.Title
	}

	return f(ctx, pr)
}

// HTTPError is returned by providers when the hosting
// platform rejected a request. Errors holds the
// structured error list from the response, if any.
type HTTPError struct {
	StatusCode int
	Message    string
	Errors     []string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("http %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if len(e.Errors) > 0 {
		msg += " (" + strings.Join(e.Errors, "; ") + ")"
	}

	return msg
}

// Unwrap returns the client library error.
func (e *HTTPError) Unwrap() error {
	return e.Err
}
