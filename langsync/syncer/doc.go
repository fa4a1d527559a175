// Package syncer merges upstream changes into translated documentation
// repositories.
//
// A Runner handles one language per call to Sync. It prepares the working
// copy, fetches the upstream branch, and recreates the sync branch
// "sync-<hash>" from the primary branch, where hash is the first eight
// characters of the upstream tip. It then pulls upstream into that branch and
// commits the result, conflict markers included.
//
// A merge without conflicts is merged into the primary branch and pushed.
// Otherwise the sync branch is force-pushed and a pull request is opened whose
// body carries a checklist with one entry per conflicting file. Pull request
// creation goes through a git.PRProvider so the same flow works against
// GitHub, GitLab, and Bitbucket Server.
package syncer
