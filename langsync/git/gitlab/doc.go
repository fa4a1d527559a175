// Package gitlab implements a git.PRProvider that opens merge requests on a
// GitLab instance through the official client library.
package gitlab
