package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Session is a cookie-carrying view of the fetcher for multi-step form
// flows. ASP.NET search pages hand out a session cookie on the initial GET
// and reject the form POST without it, so each lookup runs inside its own
// Session. Rate limits and retry policy are shared with the parent fetcher.
type Session struct {
	fetcher *HTTPFetcher
	client  *http.Client
}

// NewSession creates a Session with a fresh cookie jar.
func (f *HTTPFetcher) NewSession() *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{
		fetcher: f,
		client: &http.Client{
			Timeout:   f.opts.Timeout,
			Jar:       jar,
			Transport: f.client.Transport,
		},
	}
}

// Get fetches the URL and returns the response body for streaming.
func (s *Session) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", s.fetcher.opts.UserAgent)

	resp, err := s.fetcher.doWith(ctx, s.client, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// PostForm submits a urlencoded form and returns the response body.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", s.fetcher.opts.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.fetcher.doWith(ctx, s.client, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}
