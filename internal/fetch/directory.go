package fetch

import (
	"context"
	"fmt"
	"strings"
)

// LookupService finds the URL for token in doc. The first line containing
// token (case-sensitive substring) wins, and it must have exactly two fields.
func LookupService(doc, token string) (string, error) {
	for _, line := range strings.Split(doc, "\n") {
		if !strings.Contains(line, token) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: %q: malformed entry %q", ErrServiceNotFound, token, strings.TrimSpace(line))
		}
		return fields[1], nil
	}
	return "", fmt.Errorf("%w: %q", ErrServiceNotFound, token)
}

// ResolveServiceURL fetches the service directory at indirectionURL and
// returns the URL registered for token.
func (c *Client) ResolveServiceURL(ctx context.Context, indirectionURL, token string) (string, error) {
	res := c.Fetch(ctx, indirectionURL)
	if !res.OK() {
		return "", fmt.Errorf("%w: %q: directory unavailable: %v", ErrServiceNotFound, token, res.Err)
	}
	return LookupService(res.Text, token)
}
