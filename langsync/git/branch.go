package git

import (
	"errors"
	"fmt"
)

const (
	shortHashLen     = 8
	syncBranchPrefix = "sync-"
)

// ErrShortHash is returned when a commit hash is too
// short to derive a sync branch from.
var ErrShortHash = errors.New("commit hash too short")

// ShortHash returns the first 8 characters of hash.
func ShortHash(hash string) (string, error) {
	if len(hash) < shortHashLen {
		return "", fmt.Errorf(
			"%w: %q", ErrShortHash, hash,
		)
	}

	return hash[:shortHashLen], nil
}

// SyncBranchName derives the sync branch for an upstream
// commit hash. The name depends only on the hash so
// repeated runs against the same upstream state reuse
// the same branch.
func SyncBranchName(hash string) (string, error) {
	short, err := ShortHash(hash)
	if err != nil {
		return "", err
	}

	return syncBranchPrefix + short, nil
}
