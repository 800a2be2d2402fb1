package revision

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/implicit-corpus/collector/errors"
)

// Checkouter moves a working tree to a revision
type Checkouter interface {
	Checkout(ctx context.Context, revision string) error
}

// GitWorktree checks out revisions of a local repository with go-git
type GitWorktree struct {
	repo *git.Repository
}

// OpenWorktree opens the repository at dir
func OpenWorktree(dir string) (*GitWorktree, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open repository %s", dir)
	}
	return &GitWorktree{repo: repo}, nil
}

// Checkout force-checks out revision (tag name, branch or commit hash) as a
// detached HEAD. Tracked changes are discarded; untracked files are kept.
func (w *GitWorktree) Checkout(ctx context.Context, revision string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hash, err := w.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return errors.Wrapf(err, "resolve %s", revision)
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "open worktree")
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return errors.Wrapf(err, "checkout %s", revision)
	}
	return nil
}

// Head returns the commit currently checked out
func (w *GitWorktree) Head() (string, error) {
	return HeadCommit(w.repo)
}
