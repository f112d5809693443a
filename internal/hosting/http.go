package hosting

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"sync"

	"github.com/rennerdo30/ys-launcher/internal/fetch"
	"github.com/rennerdo30/ys-launcher/internal/logging"
)

// HTTPClient is a host serving files over plain direct links. The session is
// local bookkeeping only; the server sees independent requests.
type HTTPClient struct {
	fetcher *fetch.Client

	mu       sync.Mutex
	loggedIn bool
}

// NewHTTPClient creates a direct-link host client on top of fetcher.
func NewHTTPClient(fetcher *fetch.Client) *HTTPClient {
	return &HTTPClient{fetcher: fetcher}
}

// LoginAnonymous opens a session.
func (c *HTTPClient) LoginAnonymous(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	return nil
}

// IsLoggedIn reports whether a session is open.
func (c *HTTPClient) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Logout closes the session.
func (c *HTTPClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	c.loggedIn = false
	return nil
}

// NodeFromLink resolves the file behind link without downloading it. Links
// answered with an HTML page fail with fetch.ErrWebPage.
func (c *HTTPClient) NodeFromLink(ctx context.Context, link string) (Node, error) {
	if !c.IsLoggedIn() {
		return Node{}, ErrNotLoggedIn
	}
	u, err := parseLink(link)
	if err != nil {
		return Node{}, err
	}

	size, resp, err := c.fetcher.Head(ctx, u.String())
	if err != nil {
		return Node{}, fmt.Errorf("resolve %s: %w", link, err)
	}

	node := Node{Name: path.Base(resp.Request.URL.Path), Size: size}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			node.Name = params["filename"]
		}
	}
	if node.Size < 0 {
		node.Size = -1
	}
	return node, nil
}

// Download streams the file behind link to dest. An HTML answer fails with
// fetch.ErrWebPage and leaves nothing at dest.
func (c *HTTPClient) Download(ctx context.Context, link, dest string, progress PercentFunc) error {
	if !c.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	u, err := parseLink(link)
	if err != nil {
		return err
	}

	var onBytes fetch.ProgressFunc
	if progress != nil {
		onBytes = func(downloaded, total int64) {
			if total > 0 {
				progress(float64(downloaded) * 100 / float64(total))
			}
		}
	}

	n, err := c.fetcher.DownloadFile(ctx, u.String(), dest, onBytes)
	if err != nil {
		return err
	}
	logging.Debug("hosted file downloaded", "link", link, "bytes", n)
	if progress != nil {
		progress(100)
	}
	return nil
}

func parseLink(link string) (*url.URL, error) {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	return u, nil
}

var _ Client = (*HTTPClient)(nil)
