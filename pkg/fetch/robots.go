package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// CheckRobots fetches robots.txt for target's host and reports whether
// userAgent may fetch target. Any failure to retrieve or parse
// robots.txt fails open (allowed=true) - a missing or broken
// robots.txt must never block a fetch.
func CheckRobots(ctx context.Context, c *Client, target string, userAgent string) (bool, error) {
	u, err := url.Parse(target)
	if err != nil {
		return true, fmt.Errorf("parse target url: %w", err)
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return true, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return true, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true, nil
	}

	group := data.FindGroup(userAgent)
	allowed := group.Test(u.Path)
	if u.Path == "" || !strings.HasPrefix(u.Path, "/") {
		allowed = group.Test("/")
	}
	return allowed, nil
}
