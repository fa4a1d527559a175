// Package github implements a git.PRProvider that opens pull requests on
// GitHub (cloud or enterprise) and can request reviewers on them. Configure
// with a Config containing the repository owner, name, and access token; the
// token is sent through an oauth2 static token source. Set EnterpriseHost for
// GitHub Enterprise installations.
package github
