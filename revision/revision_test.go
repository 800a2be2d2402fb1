package revision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/implicit-corpus/collector/errors"
	collectortest "github.com/implicit-corpus/collector/internal/testing"
	"github.com/implicit-corpus/collector/runner"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		tags    []string
		n       int
		want    []string
	}{
		{"primary only", "abc", nil, 5, []string{"abc"}},
		{"limited", "abc", []string{"t1", "t2", "t3", "t4"}, 2, []string{"abc", "t1", "t2"}},
		{"primary not repeated", "abc", []string{"t1", "abc", "t2"}, 5, []string{"abc", "t1", "t2"}},
		{"repeated primary does not use a slot", "abc", []string{"abc", "t1", "t2"}, 2, []string{"abc", "t1", "t2"}},
		{"duplicates dropped", "abc", []string{"t1", "t1", "t2"}, 5, []string{"abc", "t1", "t2"}},
		{"zero steps", "abc", []string{"t1"}, 0, []string{"abc"}},
		{"empty names skipped", "abc", []string{"", "t1"}, 1, []string{"abc", "t1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.primary, tt.tags, tt.n))
		})
	}
}

func TestTagsNewestFirst(t *testing.T) {
	_, repo, hashes := collectortest.CreateTagRepo(t, "v1.0.0", "v1.1.0", "v2.0.0")

	tags, err := TagsNewestFirst(repo)
	require.NoError(t, err)

	assert.Equal(t, []string{"v2.0.0", "v1.1.0", "v1.0.0"}, TagNames(tags))
	// v1.1.0 is annotated; it still resolves to the commit it tags
	assert.Equal(t, hashes["v1.1.0"], tags[1].Commit)
	assert.Equal(t, collectortest.RepoEpoch.Add(2*time.Hour).Unix(), tags[0].When.Unix())
}

func TestTagOrderingTieBreaks(t *testing.T) {
	when := collectortest.RepoEpoch
	v := func(s string) *semver.Version { return semver.MustParse(s) }

	tags := []Tag{
		{Name: "beta", When: when},
		{Name: "v1.2.0", When: when, Version: v("v1.2.0")},
		{Name: "alpha", When: when},
		{Name: "v1.10.0", When: when, Version: v("v1.10.0")},
		{Name: "old", When: when.Add(-time.Hour)},
	}

	ordered := append([]Tag(nil), tags...)
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if newer(ordered[j], ordered[i]) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	assert.Equal(t, []string{"v1.10.0", "v1.2.0", "alpha", "beta", "old"}, TagNames(ordered))
}

func TestRepoCandidates(t *testing.T) {
	dir, repo, _ := collectortest.CreateTagRepo(t, "v1", "v2", "v3")

	head, err := HeadCommit(repo)
	require.NoError(t, err)

	got, err := RepoCandidates(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{head, "v3", "v2"}, got)
}

func TestRepoCandidates_SkipsTagAtHead(t *testing.T) {
	dir, repo, _ := collectortest.CreateTagRepo(t, "v1")
	head, err := repo.Head()
	require.NoError(t, err)
	collectortest.Tag(t, repo, "v2", head.Hash(), false)

	got, err := RepoCandidates(dir, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{head.Hash().String(), "v1"}, got)
}

func TestGitWorktreeCheckout(t *testing.T) {
	dir, _, hashes := collectortest.CreateTagRepo(t, "v1", "v2")

	wt, err := OpenWorktree(dir)
	require.NoError(t, err)

	for _, tag := range []string{"v1", "v2"} {
		require.NoError(t, wt.Checkout(context.Background(), tag))
		content, err := os.ReadFile(filepath.Join(dir, "VERSION"))
		require.NoError(t, err)
		assert.Equal(t, tag+"\n", string(content))

		head, err := wt.Head()
		require.NoError(t, err)
		assert.Equal(t, hashes[tag].String(), head)
	}

	err = wt.Checkout(context.Background(), "no-such-tag")
	assert.Error(t, err)
}

// fakeTree records checkouts and fails the ones listed in broken
type fakeTree struct {
	current string
	history []string
	broken  map[string]bool
}

func (f *fakeTree) Checkout(_ context.Context, revision string) error {
	f.history = append(f.history, revision)
	if f.broken[revision] {
		return errors.Newf("reference %s not found", revision)
	}
	f.current = revision
	return nil
}

// buildsOnly returns a builder that succeeds only at the given revisions
func buildsOnly(r *runner.Scripted, tree *fakeTree, good ...string) BuildFunc {
	ok := make(map[string]bool, len(good))
	for _, g := range good {
		ok[g] = true
	}
	r.Respond = func(_ int, cmd runner.Command) (runner.Result, error) {
		if ok[cmd.Args[0]] {
			return runner.Result{}, nil
		}
		return runner.Result{ExitCode: 1}, nil
	}
	return func(ctx context.Context, revision string) (runner.Result, error) {
		return r.Run(ctx, runner.Command{Name: "build", Args: []string{tree.current}})
	}
}

func TestSearch_FirstSuccessStops(t *testing.T) {
	tree := &fakeTree{}
	r := &runner.Scripted{}
	search := NewSearch(tree, buildsOnly(r, tree, "t2"), nil)

	out, err := search.Run(context.Background(), []string{"head", "t1", "t2", "t3"})
	require.NoError(t, err)

	assert.True(t, out.Found())
	assert.Equal(t, "t2", out.Winner)
	assert.Equal(t, "t2", out.Payload())
	assert.Equal(t, 3, r.CallCount())
	assert.Equal(t, "t2", tree.current)
	assert.Equal(t, []string{"head", "t1", "t2"}, tree.history)
}

func TestSearch_AllFail(t *testing.T) {
	tree := &fakeTree{broken: map[string]bool{"t2": true}}
	r := &runner.Scripted{}
	build := buildsOnly(r, tree)
	search := NewSearch(tree, build, nil)

	out, err := search.Run(context.Background(), []string{"head", "t1", "t2"})
	require.NoError(t, err)

	assert.False(t, out.Found())
	assert.False(t, out.TimedOut())
	// t2 could not be checked out so it was never built
	assert.Equal(t, 2, r.CallCount())
	assert.Equal(t, "head\texit 1\nt1\texit 1\nt2\tcheckout failed: reference t2 not found\n", out.Payload())
	assert.Equal(t, "head", tree.current)
}

func TestSearch_TimeoutReason(t *testing.T) {
	tree := &fakeTree{}
	build := func(context.Context, string) (runner.Result, error) {
		return runner.Result{ExitCode: -1, TimedOut: true}, nil
	}

	out, err := NewSearch(tree, build, nil).Run(context.Background(), []string{"head"})
	require.NoError(t, err)
	assert.True(t, out.TimedOut())
	assert.Equal(t, "head\ttimeout\n", out.Payload())
}

func TestSearch_Deterministic(t *testing.T) {
	candidates := []string{"head", "t1", "t2", "t3"}

	var payloads []string
	for i := 0; i < 3; i++ {
		tree := &fakeTree{}
		r := &runner.Scripted{}
		out, err := NewSearch(tree, buildsOnly(r, tree), nil).Run(context.Background(), candidates)
		require.NoError(t, err)
		assert.Equal(t, len(candidates), r.CallCount(), "each candidate built exactly once")
		payloads = append(payloads, out.Payload())
	}
	assert.Equal(t, payloads[0], payloads[1])
	assert.Equal(t, payloads[0], payloads[2])
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tree := &fakeTree{}
	r := &runner.Scripted{}
	_, err := NewSearch(tree, buildsOnly(r, tree), nil).Run(ctx, []string{"head", "t1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.CallCount())
}

func TestSearch_RealRepository(t *testing.T) {
	dir, repo, hashes := collectortest.CreateTagRepo(t, "v1", "v2", "v3")

	candidates, err := RepoCandidates(dir, 5)
	require.NoError(t, err)

	wt, err := OpenWorktree(dir)
	require.NoError(t, err)

	// only v2's tree builds
	build := func(context.Context, string) (runner.Result, error) {
		content, err := os.ReadFile(filepath.Join(dir, "VERSION"))
		if err != nil {
			return runner.Result{}, err
		}
		if string(content) == "v2\n" {
			return runner.Result{}, nil
		}
		return runner.Result{ExitCode: 2}, nil
	}

	out, err := NewSearch(wt, build, nil).Run(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, "v2", out.Winner)
	require.Len(t, out.Attempts, 3)
	assert.Equal(t, "exit 2", out.Attempts[0].Reason)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, hashes["v2"], head.Hash())
}
