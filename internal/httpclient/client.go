// Package httpclient provides the outbound HTTP client used for metadata
// lookups: a timeout, a scheme allowlist, a redirect cap and a token-bucket
// rate limit shared by every request.
package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/implicit-corpus/collector/errors"
)

// Client wraps http.Client with request pacing
type Client struct {
	*http.Client
	limiter        *rate.Limiter
	allowedSchemes []string
	maxRedirects   int
}

// New creates a client allowing perHour requests per hour (0 = unlimited)
func New(timeout time.Duration, perHour int) *Client {
	limit := rate.Inf
	if perHour > 0 {
		limit = rate.Limit(float64(perHour) / 3600.0)
	}

	c := &Client{
		Client:         &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(limit, 1),
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   5,
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	return c
}

// WithLimiter replaces the rate limiter (tests use rate.Inf)
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

// Do waits for a rate-limit token, then executes req
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}
	return c.Client.Do(req)
}

// Get issues a paced GET bound to ctx
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", rawURL)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(req)
}

func (c *Client) validateURL(u *url.URL) error {
	for _, scheme := range c.allowedSchemes {
		if u.Scheme == scheme {
			if u.Host == "" {
				return errors.Newf("url %q has no host", u.String())
			}
			return nil
		}
	}
	return errors.Newf("scheme %q not allowed", u.Scheme)
}
