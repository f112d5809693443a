// Package fetch retrieves small text documents and files over HTTP(S).
//
// Text fetches never fail loudly: every transport error, non-success status
// or blank body degrades to an empty result, and callers treat empty text as
// "unknown".
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/rennerdo30/ys-launcher/internal/logging"
)

// maxTextSize bounds text documents; version and directory files are tiny.
const maxTextSize = 1 << 20

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and 1970-01-01.
const ticksAtUnixEpoch = 621355968000000000

// Config configures a Client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// ProxyURL overrides the proxy taken from the environment when set.
	ProxyURL string
	// MaxDownloadRate caps DownloadFile in bytes per second; 0 is unlimited.
	MaxDownloadRate int64
	// Now is the clock used for cache-busting tokens.
	Now func() time.Time
}

// Client fetches remote documents.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	downloadRate int64
	now          func() time.Time
}

// Result is the outcome of a text fetch.
type Result struct {
	// Text is the response body, or "" when every attempt failed.
	Text string
	// URL is the URL of the last attempt.
	URL string
	// Err describes why the last attempt failed; nil when Text is set.
	Err error
}

// OK reports whether a non-blank document was retrieved.
func (r Result) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Text) != ""
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	proxy, err := proxyFunc(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgent:    cfg.UserAgent,
		downloadRate: cfg.MaxDownloadRate,
		now:          now,
	}, nil
}

func proxyFunc(override string) (func(*url.URL) (*url.URL, error), error) {
	if override == "" {
		return httpproxy.FromEnvironment().ProxyFunc(), nil
	}
	if _, err := url.Parse(override); err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	cfg := &httpproxy.Config{
		HTTPProxy:  override,
		HTTPSProxy: override,
	}
	return cfg.ProxyFunc(), nil
}

// CacheBuster returns the query suffix appended to rawURL so intermediate
// caches never serve a stale document. The token is the number of 100ns ticks
// since 0001-01-01 UTC.
func CacheBuster(rawURL string, t time.Time) string {
	ticks := t.UTC().UnixNano()/100 + ticksAtUnixEpoch
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return sep + strconv.FormatInt(ticks, 10)
}

// stripScheme removes a leading scheme so the address can be retried with
// another one.
func stripScheme(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		return rawURL[i+3:]
	}
	return rawURL
}

// Fetch retrieves the document at rawURL with a cache-busting token, trying
// https first and plain http only when the https attempt yields nothing.
func (c *Client) Fetch(ctx context.Context, rawURL string) Result {
	address := stripScheme(strings.TrimSpace(rawURL))
	address += CacheBuster(address, c.now())

	var res Result
	for _, scheme := range []string{"https://", "http://"} {
		res = c.get(ctx, scheme+address)
		if res.OK() {
			return res
		}
		logging.Debug("fetch attempt failed", "url", res.URL, "error", res.Err)
		if ctx.Err() != nil {
			break
		}
	}
	res.Text = ""
	return res
}

// FetchText returns the document at rawURL, or "" on any failure.
func (c *Client) FetchText(ctx context.Context, rawURL string) string {
	return c.Fetch(ctx, rawURL).Text
}

func (c *Client) get(ctx context.Context, target string) Result {
	res := Result{URL: target}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Err = fmt.Errorf("create request: %w", err)
		return res
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTextSize))
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}
	if strings.TrimSpace(string(body)) == "" {
		res.Err = ErrEmptyResponse
		return res
	}

	res.Text = string(body)
	return res
}
