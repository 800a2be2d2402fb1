package revision

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/implicit-corpus/collector/errors"
)

// Tag is a release tag resolved to the commit it names
type Tag struct {
	Name    string
	Commit  plumbing.Hash
	When    time.Time // committer time of the tagged commit
	Version *semver.Version
}

// TagsNewestFirst lists the repository's tags ordered by tagged commit time,
// newest first. Equal times fall back to semantic version (higher first,
// parseable before unparseable), then to name. Tags that do not point at a
// commit are skipped.
func TagsNewestFirst(repo *git.Repository) ([]Tag, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, errors.Wrap(err, "list tags")
	}
	defer iter.Close()

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		commit, err := tagCommit(repo, ref.Hash())
		if err != nil {
			return nil
		}

		name := ref.Name().Short()
		tag := Tag{Name: name, Commit: commit.Hash, When: commit.Committer.When}
		if v, err := semver.NewVersion(name); err == nil {
			tag.Version = v
		}
		tags = append(tags, tag)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "read tags")
	}

	sort.SliceStable(tags, func(i, j int) bool {
		return newer(tags[i], tags[j])
	})
	return tags, nil
}

func newer(a, b Tag) bool {
	if !a.When.Equal(b.When) {
		return a.When.After(b.When)
	}
	switch {
	case a.Version != nil && b.Version != nil:
		if c := a.Version.Compare(b.Version); c != 0 {
			return c > 0
		}
	case a.Version != nil:
		return true
	case b.Version != nil:
		return false
	}
	return a.Name < b.Name
}

// tagCommit peels lightweight and annotated tags to their commit
func tagCommit(repo *git.Repository, hash plumbing.Hash) (*object.Commit, error) {
	if tagObj, err := repo.TagObject(hash); err == nil {
		return tagObj.Commit()
	}
	return repo.CommitObject(hash)
}

// TagNames returns the names of tags in order
func TagNames(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// HeadCommit returns the full hash of the commit HEAD points at
func HeadCommit(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "resolve HEAD")
	}
	return head.Hash().String(), nil
}
