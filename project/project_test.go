package project

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/httpclient"
	collectortest "github.com/implicit-corpus/collector/internal/testing"
)

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Metadata{
		Name:         "akka",
		Version:      "v2.5.0",
		LastCommit:   "0123456789abcdef",
		URL:          "https://github.com/akka/akka.git",
		TotalLOC:     1200,
		SubjectLOC:   1000,
		RepoName:     "akka/akka",
		Stars:        12000,
		BuildSystems: []string{"maven", "sbt"},
	}

	require.NoError(t, WriteMetadata(dir, m))

	content, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "name,version,last_commit,url,total_loc,scala_loc,reponame,gh_stars,build_systems", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",maven|sbt"))

	got, missing, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, m, got)
}

func TestReadMetadata_OlderRecord(t *testing.T) {
	dir := t.TempDir()
	record := "name,version,last_commit,url\nshapeless,v2.3.3,abc123,git@github.com:milessabin/shapeless.git\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(record), 0o644))

	m, missing, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, "shapeless", m.Name)
	assert.Equal(t, "v2.3.3", m.Version)
	assert.Zero(t, m.TotalLOC)
	assert.Nil(t, m.BuildSystems)
	assert.Equal(t, []string{"total_loc", "scala_loc", "reponame", "gh_stars", "build_systems"}, missing)

	err = MissingColumnsError(MetadataFile, missing)
	assert.True(t, errors.Is(err, errors.ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "gh_stars")
	assert.NoError(t, MissingColumnsError(MetadataFile, nil))
}

func TestReadMetadata_Errors(t *testing.T) {
	_, _, err := ReadMetadata(t.TempDir())
	assert.True(t, errors.IsNotFoundError(err))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("name,total_loc\nx,lots\n"), 0o644))
	_, _, err = ReadMetadata(dir)
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"zio", "akka", ".cache", "cats"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), nil, 0o644))

	names, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"akka", "cats", "zio"}, names)

	_, err = Discover(filepath.Join(root, "missing"))
	assert.True(t, errors.IsNotFoundError(err))
}

type fixedStars map[string]int

func (f fixedStars) Stars(_ context.Context, slug string) (int, error) {
	n, ok := f[slug]
	if !ok {
		return 0, errors.NewNotFoundError("repository %s", slug)
	}
	return n, nil
}

func TestCapture(t *testing.T) {
	dir, repo, hashes := collectortest.CreateTagRepo(t, "v0.1.0", "v0.2.0")
	collectortest.SetOrigin(t, repo, "https://github.com/typelevel/cats.git")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.sbt"), []byte("name := \"cats\"\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "main"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main", "Main.scala"), []byte("object Main {\n  def x = 1\n}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "Gen.scala"), []byte("a\nb\nc\n"), 0o644))

	c := NewCapturer(".scala", fixedStars{"typelevel/cats": 5000}, nil)
	m, err := c.Capture(context.Background(), dir)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(dir), m.Name)
	assert.Equal(t, head.Hash().String(), m.LastCommit)
	assert.Equal(t, "v0.2.0", m.Version)
	assert.NotEqual(t, hashes["v0.2.0"].String(), m.LastCommit)
	assert.Equal(t, "https://github.com/typelevel/cats.git", m.URL)
	assert.Equal(t, "typelevel/cats", m.RepoName)
	assert.Equal(t, 5000, m.Stars)
	// VERSION (1) + build.sbt (1) + Main.scala (3, no trailing newline)
	assert.Equal(t, 5, m.TotalLOC)
	assert.Equal(t, 3, m.SubjectLOC)
	assert.Equal(t, []string{"sbt"}, m.BuildSystems)
}

func TestCapture_NoOriginNoTags(t *testing.T) {
	dir, repo := collectortest.InitRepo(t)
	hash := collectortest.Commit(t, repo, dir, "README", "hello\n", collectortest.RepoEpoch)

	m, err := NewCapturer(".scala", nil, nil).Capture(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, hash.String()[:7], m.Version)
	assert.Empty(t, m.URL)
	assert.Empty(t, m.RepoName)
	assert.Zero(t, m.Stars)
}

func TestCapture_NotARepository(t *testing.T) {
	_, err := NewCapturer(".scala", nil, nil).Capture(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestVersion_TagAtHead(t *testing.T) {
	_, repo, _ := collectortest.CreateTagRepo(t, "v1.0.0")
	head, err := repo.Head()
	require.NoError(t, err)
	collectortest.Tag(t, repo, "v1.1.0", head.Hash(), true)

	v, err := Version(repo, head.Hash().String())
	require.NoError(t, err)
	assert.Equal(t, "v1.1.0", v)
}

func TestCountLines_SkipsBinary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1\n2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0x00, '\n', '\n'}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.scala"), nil, 0o644))

	total, subject, err := CountLines(dir, ".scala")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, subject)
}

func TestBuildSystems(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"pom.xml", "build.gradle", "build.gradle.kts", "build.sc"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o644))
	}
	assert.Equal(t, []string{"gradle", "maven", "mill"}, BuildSystems(dir))
	assert.Empty(t, BuildSystems(t.TempDir()))
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in   string
		host string
		slug string
		ok   bool
	}{
		{"https://github.com/akka/akka.git", "github.com", "akka/akka", true},
		{"https://github.com/akka/akka/", "github.com", "akka/akka", true},
		{"git@github.com:milessabin/shapeless.git", "github.com", "milessabin/shapeless", true},
		{"ssh://git@gitlab.com/group/sub/repo.git", "gitlab.com", "sub/repo", true},
		{"https://github.com/akka", "", "", false},
		{"/local/path/repo", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, slug, ok := ParseRepoURL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.slug, slug)
		})
	}
}

func TestGitHubStars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/akka/akka":
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"full_name":"akka/akka","stargazers_count":12345}`))
		case "/repos/broken/json":
			_, _ = w.Write([]byte(`{`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	stars := NewGitHubStars(httpclient.New(5*time.Second, 0), srv.URL+"/", "secret")

	n, err := stars.Stars(context.Background(), "akka/akka")
	require.NoError(t, err)
	assert.Equal(t, 12345, n)

	_, err = stars.Stars(context.Background(), "nobody/nothing")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = stars.Stars(context.Background(), "broken/json")
	assert.Error(t, err)
}
