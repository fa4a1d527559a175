// Package git provides working-copy operations for a translated repository
// and a strategy interface for opening pull requests across git hosting
// platforms.
//
// Repo wraps a local clone that has two remotes: origin, the translated
// repository that receives pushes, and upstream, the source-language
// repository that changes are merged from. PullUpstream classifies the merge
// result as a PullOutcome so callers never need to inspect command output.
//
// The PRProvider interface abstracts pull-request creation. Implementations
// exist for GitHub, GitLab, and Bitbucket Server in sub-packages; providers
// report rejected requests as *HTTPError. PRProviderFunc lets plain functions
// satisfy the interface.
package git
