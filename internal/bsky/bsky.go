// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bsky provides a client for posting to Bluesky over the atproto
// XRPC API.
//
// To use this package, create a [Client] with the XRPC host, authenticate
// with [Client.CreateSession], and then call [Client.CreatePost]. The client
// holds the access JWT and DID of the session for the lifetime of a run;
// there is no token refresh.
package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/request"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/richtext"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/version"
)

// ErrNoSession is returned by calls that need an authenticated session.
var ErrNoSession = errors.New("not authenticated")

// Client represents an atproto XRPC API client.
type Client struct {
	// Host is the XRPC host, for example "https://bsky.social".
	Host string
	// HTTPClient is an optional custom HTTP client object to use for
	// requests. If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs credentials from
	// error messages.
	Scrubber *strings.Replacer
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time

	accessJWT string
	did       string
}

// DID returns the DID of the authenticated session, if any.
func (c *Client) DID() string { return c.did }

// CreateSession authenticates with identifier and an app password and stores
// the session credentials on the client.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) error {
	type input struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	type output struct {
		AccessJWT string `json:"accessJwt"`
		DID       string `json:"did"`
	}

	out, err := request.Make[output](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        c.Host + "/xrpc/com.atproto.server.createSession",
		Body:       input{Identifier: identifier, Password: password},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return err
	}

	c.accessJWT = out.AccessJWT
	c.did = out.DID
	return nil
}

// Ref identifies a created record.
type Ref struct {
	CID string `json:"cid"`
	URI string `json:"uri"`
}

// Image is an uploaded blob to attach to a post.
type Image struct {
	// Alt is the alternative text.
	Alt string
	// Blob is the blob reference returned by UploadBlob, carried verbatim.
	Blob json.RawMessage
}

// Wire representation of an app.bsky.feed.post record.
// https://atproto.com/lexicons/app-bsky-feed#appbskyfeedpost
type (
	byteSlice struct {
		ByteStart int `json:"byteStart"`
		ByteEnd   int `json:"byteEnd"`
	}
	linkFeature struct {
		Type string `json:"$type"`
		URI  string `json:"uri"`
	}
	facet struct {
		Index    byteSlice     `json:"index"`
		Features []linkFeature `json:"features"`
	}
	imageEntry struct {
		Alt   string          `json:"alt"`
		Image json.RawMessage `json:"image"`
	}
	imagesEmbed struct {
		Type   string       `json:"$type"`
		Images []imageEntry `json:"images"`
	}
	postRecord struct {
		Type      string       `json:"$type"`
		Text      string       `json:"text"`
		CreatedAt string       `json:"createdAt"`
		Facets    []facet      `json:"facets,omitempty"`
		Embed     *imagesEmbed `json:"embed,omitempty"`
	}
)

// CreatePost creates an app.bsky.feed.post record from composed post text
// and its link facets, optionally attaching an image embed.
func (c *Client) CreatePost(ctx context.Context, post richtext.Post, image *Image) (Ref, error) {
	if c.accessJWT == "" {
		return Ref{}, ErrNoSession
	}

	record := postRecord{
		Type:      "app.bsky.feed.post",
		Text:      post.Text,
		CreatedAt: c.now().UTC().Format(time.RFC3339),
	}
	for _, f := range post.Facets {
		record.Facets = append(record.Facets, facet{
			Index: byteSlice{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd},
			Features: []linkFeature{{
				Type: "app.bsky.richtext.facet#link",
				URI:  f.URI,
			}},
		})
	}
	if image != nil {
		record.Embed = &imagesEmbed{
			Type:   "app.bsky.embed.images",
			Images: []imageEntry{{Alt: image.Alt, Image: image.Blob}},
		}
	}

	type input struct {
		Repo       string     `json:"repo"`
		Collection string     `json:"collection"`
		Record     postRecord `json:"record"`
	}

	return request.Make[Ref](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.Host + "/xrpc/com.atproto.repo.createRecord",
		Headers: map[string]string{
			"Authorization": "Bearer " + c.accessJWT,
		},
		Body: input{
			Repo:       c.did,
			Collection: "app.bsky.feed.post",
			Record:     record,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

// UploadBlob uploads raw bytes with the given MIME type and returns the blob
// reference to embed into records.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error) {
	if c.accessJWT == "" {
		return nil, ErrNoSession
	}

	// The upload body is raw bytes, not JSON, so this request is made
	// directly instead of through request.Make.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessJWT)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.httpc().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("uploading blob: want 200, got %d: %s", res.StatusCode, b)
	}

	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out.Blob, nil
}

func (c *Client) httpc() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return request.DefaultClient
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
