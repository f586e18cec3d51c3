// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/testutil"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Example</title>
    <link>https://example.com</link>
    <item>
      <title>Second</title>
      <link>https://example.com/notes/2</link>
      <description>&lt;p&gt;with a picture&lt;/p&gt;</description>
      <media:content url="https://example.com/media/2.png" type="image/png" fileSize="1024">
        <media:rating scheme="urn:simple">nonadult</media:rating>
      </media:content>
    </item>
    <item>
      <title>First</title>
      <link>https://example.com/notes/1</link>
      <description>&lt;p&gt;hello&lt;/p&gt;</description>
    </item>
  </channel>
</rss>`

func TestFetch(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	c := &Client{HTTPClient: srv.Client()}
	items, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if gotUA == "" {
		t.Error("request had no User-Agent header")
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	testutil.AssertEqual(t, items[0].Link, "https://example.com/notes/2")
	testutil.AssertEqual(t, items[1].Link, "https://example.com/notes/1")
	testutil.AssertEqual(t, items[1].Description, "<p>hello</p>")

	// The Media RSS extension must survive the parse.
	m, err := ItemMedia(items[0])
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, m, Media{
		URL:      "https://example.com/media/2.png",
		Type:     "image/png",
		FileSize: 1024,
		Rating:   RatingNonAdult,
	})
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{HTTPClient: srv.Client()}
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("want error on 500 response")
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	c := &Client{HTTPClient: srv.Client()}
	got, err := c.Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(got), "image bytes")
}

func mediaItem(attrs map[string]string, rating string) *gofeed.Item {
	content := ext.Extension{Name: "content", Attrs: attrs}
	if rating != "" {
		content.Children = map[string][]ext.Extension{
			"rating": {{Name: "rating", Value: rating}},
		}
	}
	return &gofeed.Item{
		Extensions: ext.Extensions{
			"media": {"content": []ext.Extension{content}},
		},
	}
}

func TestItemMedia(t *testing.T) {
	t.Parallel()

	attrs := map[string]string{
		"url":      "https://example.com/a.jpg",
		"type":     "image/jpeg",
		"fileSize": "2048",
	}

	t.Run("no extension", func(t *testing.T) {
		_, err := ItemMedia(&gofeed.Item{})
		if !errors.Is(err, ErrNoMedia) {
			t.Fatalf("want %v, got %v", ErrNoMedia, err)
		}
	})

	t.Run("nonadult rating", func(t *testing.T) {
		m, err := ItemMedia(mediaItem(attrs, "nonadult"))
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, m.Rating, RatingNonAdult)
	})

	t.Run("other rating", func(t *testing.T) {
		m, err := ItemMedia(mediaItem(attrs, "adult"))
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, m.Rating, RatingOther)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := ItemMedia(mediaItem(map[string]string{"type": "image/jpeg", "fileSize": "1"}, "nonadult"))
		if err == nil || errors.Is(err, ErrNoMedia) {
			t.Fatalf("want attribute error, got %v", err)
		}
	})

	t.Run("missing rating", func(t *testing.T) {
		_, err := ItemMedia(mediaItem(attrs, ""))
		if err == nil || errors.Is(err, ErrNoMedia) {
			t.Fatalf("want attribute error, got %v", err)
		}
	})

	t.Run("unparsable file size", func(t *testing.T) {
		bad := map[string]string{
			"url":      "https://example.com/a.jpg",
			"type":     "image/jpeg",
			"fileSize": "huge",
		}
		if _, err := ItemMedia(mediaItem(bad, "nonadult")); err == nil {
			t.Fatal("want error for unparsable fileSize")
		}
	})
}
