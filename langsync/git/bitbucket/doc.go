// Package bitbucket implements a git.PRProvider for Bitbucket Server using
// its REST API directly.
package bitbucket
