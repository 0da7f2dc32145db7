package tileset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/golang/glog"
)

const SessionCookie = "session"

// FetchResult is a successfully fetched body together with the session
// token the service handed out, if any.
type FetchResult struct {
	URL          string
	Body         []byte
	SessionToken string
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %d %s", StripCredentials(e.URL), e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type HTTPFetcherOptions struct {
	Timeout   time.Duration     // Per request timeout
	Retries   int               // Extra attempts on 5xx and 429 responses
	Backoff   time.Duration     // Delay before the first retry, doubled on every attempt
	UserAgent string            // Sent with every request when not empty
	Transport http.RoundTripper // Defaults to http.DefaultTransport
}

// HTTPFetcher keeps a cookie jar so that the session cookie set by the first
// response is presented on every later request.
type HTTPFetcher struct {
	client  *http.Client
	options HTTPFetcherOptions
}

func NewHTTPFetcher(options HTTPFetcherOptions) *HTTPFetcher {
	jar, _ := cookiejar.New(nil)
	if options.Timeout <= 0 {
		options.Timeout = 60 * time.Second
	}
	if options.Backoff <= 0 {
		options.Backoff = 500 * time.Millisecond
	}
	return &HTTPFetcher{
		client: &http.Client{
			Jar:       jar,
			Timeout:   options.Timeout,
			Transport: options.Transport,
		},
		options: options,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	delay := f.options.Backoff
	for attempt := 0; ; attempt++ {
		result, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return result, nil
		}

		var statusErr *StatusError
		if attempt >= f.options.Retries || !errors.As(err, &statusErr) || !statusErr.retryable() {
			return nil, err
		}
		glog.Warningf("%v, retrying in %v", err, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.options.UserAgent != "" {
		req.Header.Set("User-Agent", f.options.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", StripCredentials(rawURL), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: snippet}
	}

	return &FetchResult{URL: rawURL, Body: body, SessionToken: f.sessionToken(resp)}, nil
}

func (f *HTTPFetcher) sessionToken(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	if f.client.Jar != nil && resp.Request != nil {
		for _, c := range f.client.Jar.Cookies(resp.Request.URL) {
			if c.Name == SessionCookie {
				return c.Value
			}
		}
	}
	return ""
}

// CheckConnection fetches the entry point and verifies that it is a tileset
// document. Failures carry a hint for the usual causes.
func CheckConnection(ctx context.Context, fetcher Fetcher, rawURL string) (*FetchResult, error) {
	result, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if hint := statusHint(statusErr.StatusCode); hint != "" {
				return nil, fmt.Errorf("%w (%s)", err, hint)
			}
		}
		return nil, err
	}

	var ts Tileset
	if err := json.Unmarshal(result.Body, &ts); err != nil {
		return nil, fmt.Errorf("entry point %s did not return JSON: %w", StripCredentials(rawURL), err)
	}
	if ts.Asset == nil || ts.Root == nil {
		return nil, fmt.Errorf("entry point %s is not a tileset: missing asset or root", StripCredentials(rawURL))
	}
	return result, nil
}

func statusHint(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "the request was rejected; check the API key format and the entry point URL"
	case http.StatusForbidden:
		return "access denied; check that the API key is valid and the Map Tiles API is enabled for it"
	case http.StatusNotFound:
		return "the entry point was not found; check the tile service URL"
	}
	return ""
}

// hostOf is used in log lines to avoid printing credentials.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
