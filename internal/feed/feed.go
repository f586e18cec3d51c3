// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feed fetches and parses syndication feeds.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/request"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/version"

	"github.com/mmcdole/gofeed"
)

// Client fetches feeds over HTTP.
type Client struct {
	// HTTPClient is an optional custom HTTP client object to use for
	// requests. If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
}

// Fetch retrieves and parses the feed at url, returning its items in
// document order.
func (c *Client) Fetch(ctx context.Context, url string) ([]*gofeed.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	httpc := request.DefaultClient
	if c.HTTPClient != nil {
		httpc = c.HTTPClient
	}

	res, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		const readLimit = 16384 // enough for error messages (probably)
		body, err := io.ReadAll(io.LimitReader(res.Body, readLimit))
		if err != nil {
			body = []byte("unable to read body")
		}
		return nil, fmt.Errorf("fetching %q: want 200, got %d: %s", url, res.StatusCode, body)
	}

	feed, err := gofeed.NewParser().Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", url, err)
	}

	return feed.Items, nil
}

// Download retrieves the raw bytes at url. It is used to fetch media
// attachments referenced by feed items.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	httpc := request.DefaultClient
	if c.HTTPClient != nil {
		httpc = c.HTTPClient
	}

	res, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %q: want 200, got %d", url, res.StatusCode)
	}
	return io.ReadAll(res.Body)
}
