package project

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/httpclient"
)

// StarCounter looks up the popularity of a hosted repository
type StarCounter interface {
	Stars(ctx context.Context, slug string) (int, error)
}

// GitHubStars reads stargazer counts from the GitHub REST API
type GitHubStars struct {
	client *httpclient.Client
	apiURL string
	token  string
}

// NewGitHubStars creates a counter against apiURL (https://api.github.com
// for the public service). An empty token makes unauthenticated requests.
func NewGitHubStars(client *httpclient.Client, apiURL, token string) *GitHubStars {
	return &GitHubStars{client: client, apiURL: strings.TrimSuffix(apiURL, "/"), token: token}
}

// Stars returns the stargazer count of owner/repo
func (g *GitHubStars) Stars(ctx context.Context, slug string) (int, error) {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Get(ctx, g.apiURL+"/repos/"+slug, header)
	if err != nil {
		return 0, errors.Wrapf(err, "query %s", slug)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, errors.NewNotFoundError("repository %s", slug)
	case resp.StatusCode != http.StatusOK:
		return 0, errors.Newf("query %s: unexpected status %s", slug, resp.Status)
	}

	var body struct {
		StargazersCount int `json:"stargazers_count"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return 0, errors.Wrapf(err, "decode response for %s", slug)
	}
	return body.StargazersCount, nil
}

// ParseRepoURL extracts host and owner/repo from a clone URL. Handles
// https and ssh URLs and the scp-like git@host:owner/repo form.
func ParseRepoURL(raw string) (host, slug string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}

	var path string
	if at := strings.Index(raw, "@"); at >= 0 && !strings.Contains(raw, "://") {
		rest := raw[at+1:]
		colon := strings.Index(rest, ":")
		if colon < 0 {
			return "", "", false
		}
		host, path = rest[:colon], rest[colon+1:]
	} else {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "", "", false
		}
		host, path = u.Hostname(), u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", false
	}
	return host, parts[len(parts)-2] + "/" + parts[len(parts)-1], true
}
