package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rennerdo30/ys-launcher/internal/ratelimit"
)

// ProgressFunc is called during a download with the bytes written so far and
// the expected total (-1 when unknown).
type ProgressFunc func(downloaded, total int64)

// DownloadFile streams url to dest, replacing any existing file. A partial
// file is removed on failure. HTML responses are refused with ErrWebPage.
func (c *Client) DownloadFile(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Downloads are bounded by ctx, not by the text-fetch timeout.
	client := *c.httpClient
	client.Timeout = 0

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %w: %d", ErrDownloadFailed, ErrBadStatus, resp.StatusCode)
	}
	if isWebPage(resp.Header) {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, ErrWebPage)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	reader := ratelimit.NewReader(ctx, resp.Body, c.downloadRate)
	if progress != nil {
		reader = &progressReader{
			reader:   reader,
			total:    resp.ContentLength,
			callback: progress,
		}
	}

	n, err := io.Copy(out, reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return n, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return n, nil
}

// Head issues a HEAD request and returns the response headers' content length
// and the final URL. HTML responses are refused with ErrWebPage. Servers that reject HEAD are retried with a GET whose
// body is discarded unread.
func (c *Client) Head(ctx context.Context, url string) (int64, *http.Response, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		resp, err = c.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		return 0, nil, err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, resp, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	if isWebPage(resp.Header) {
		return 0, resp, ErrWebPage
	}
	return resp.ContentLength, resp, nil
}

func isWebPage(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && (mediaType == "text/html" || mediaType == "application/xhtml+xml")
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.httpClient.Do(req)
}

// progressReader wraps an io.Reader to report progress.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	callback   ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		pr.callback(pr.downloaded, pr.total)
	}
	return n, err
}
