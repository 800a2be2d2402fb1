// Package revision builds the list of revisions worth trying for a project
// and searches it for the first one that builds.
package revision

import (
	"github.com/go-git/go-git/v5"

	"github.com/implicit-corpus/collector/errors"
)

// Candidates returns primary followed by at most n entries of tags, in the
// given order. Empty names and duplicates are dropped; primary never
// appears twice.
func Candidates(primary string, tags []string, n int) []string {
	out := make([]string, 0, n+1)
	seen := make(map[string]bool, n+1)

	if primary != "" {
		out = append(out, primary)
		seen[primary] = true
	}

	added := 0
	for _, tag := range tags {
		if added >= n {
			break
		}
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		added++
	}
	return out
}

// RepoCandidates opens the repository at dir and returns its HEAD commit
// followed by up to n tags newest first. Tags naming the HEAD commit are
// skipped since building them would repeat the primary build.
func RepoCandidates(dir string, n int) ([]string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open repository %s", dir)
	}

	primary, err := HeadCommit(repo)
	if err != nil {
		return nil, err
	}

	tags, err := TagsNewestFirst(repo)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Commit.String() == primary {
			continue
		}
		names = append(names, t.Name)
	}

	return Candidates(primary, names, n), nil
}
