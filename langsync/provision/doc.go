// Package provision prepares the local working copy a sync runs against. It
// clones the translated repository on first use, keeps the origin and
// upstream remotes pointed at the configured URLs, fetches origin, and resets
// the primary branch to origin's tip so every sync starts from a clean tree.
//
// Repository inspection, remote configuration, cloning, and fetching use
// go-git; the final reset shells out to git so that an interrupted merge left
// behind by a failed run is discarded as well.
package provision
