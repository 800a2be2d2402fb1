package testing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RepoEpoch is the commit time of the first commit made by CreateTagRepo
var RepoEpoch = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

// InitRepo initialises an empty repository in a fresh temp directory
func InitRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}
	return dir, repo
}

// Commit writes file with content and commits it at the given time
func Commit(t *testing.T, repo *git.Repository, dir, file, content string, when time.Time) plumbing.Hash {
	t.Helper()

	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", file, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}
	if _, err := wt.Add(file); err != nil {
		t.Fatalf("Failed to add %s: %v", file, err)
	}

	sig := &object.Signature{Name: "Corpus Tester", Email: "tester@example.com", When: when}
	hash, err := wt.Commit("update "+file, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return hash
}

// Tag creates a lightweight tag, or an annotated one when annotated is set
func Tag(t *testing.T, repo *git.Repository, name string, hash plumbing.Hash, annotated bool) {
	t.Helper()

	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{
			Tagger:  &object.Signature{Name: "Corpus Tester", Email: "tester@example.com", When: RepoEpoch},
			Message: "release " + name,
		}
	}
	if _, err := repo.CreateTag(name, hash, opts); err != nil {
		t.Fatalf("Failed to tag %s: %v", name, err)
	}
}

// SetOrigin records url as the origin remote
func SetOrigin(t *testing.T, repo *git.Repository, url string) {
	t.Helper()

	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{url}}); err != nil {
		t.Fatalf("Failed to create origin remote: %v", err)
	}
}

// CreateTagRepo builds a repository with one commit per tag, an hour apart
// and tagged in the given order (so the last tag is the newest), followed
// by an untagged head commit. Returns the directory, the repository and
// the commit hash of every tag.
func CreateTagRepo(t *testing.T, tags ...string) (string, *git.Repository, map[string]plumbing.Hash) {
	t.Helper()

	dir, repo := InitRepo(t)
	hashes := make(map[string]plumbing.Hash, len(tags))

	for i, tag := range tags {
		hash := Commit(t, repo, dir, "VERSION", tag+"\n", RepoEpoch.Add(time.Duration(i)*time.Hour))
		Tag(t, repo, tag, hash, i%2 == 1)
		hashes[tag] = hash
	}

	Commit(t, repo, dir, "VERSION", "head\n", RepoEpoch.Add(time.Duration(len(tags))*time.Hour))
	return dir, repo, hashes
}
