// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package richtext

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/testutil"
)

var update = flag.Bool("update", false, "update golden files in testdata")

func TestFromHTML(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		html string
		want []Segment
	}{
		"plain text only": {
			html: "<p>Hello &amp; welcome</p>",
			want: []Segment{{Text: "Hello & welcome"}},
		},
		"line breaks become newlines": {
			html: "<p>one<br>two<br/>three</p>",
			want: []Segment{{Text: "one\ntwo\nthree"}},
		},
		"anchors interleaved in document order": {
			html: `<p>see <a href="https://x/1">one</a> and <a href="https://x/2">two</a>!</p>`,
			want: []Segment{
				{Text: "see "},
				{Text: "one", URL: "https://x/1"},
				{Text: " and "},
				{Text: "two", URL: "https://x/2"},
				{Text: "!"},
			},
		},
		"markup inside anchor is stripped": {
			html: `<a href="https://x/1"><span>styled</span></a>`,
			want: []Segment{{Text: "styled", URL: "https://x/1"}},
		},
		"line break inside anchor": {
			html: `<a href="https://x/1">first<br>second</a>`,
			want: []Segment{{Text: "first\nsecond", URL: "https://x/1"}},
		},
		"anchor without href stays plain": {
			html: `<p><a name="top">not a link</a></p>`,
			want: []Segment{{Text: "not a link"}},
		},
		"anchor closed over unclosed child is dropped": {
			html: `<a href="https://x/1">broken<span></a>`,
			want: nil,
		},
		"unterminated text is flushed at end of input": {
			html: "<p>tail",
			want: []Segment{{Text: "tail"}},
		},
		"unterminated anchor is dropped at end of input": {
			html: `<a href="https://x/1">dangling`,
			want: nil,
		},
		"multibyte text": {
			html: `<p>こんにちは <a href="https://x/1">世界</a></p>`,
			want: []Segment{
				{Text: "こんにちは "},
				{Text: "世界", URL: "https://x/1"},
			},
		},
		"empty input": {
			html: "",
			want: nil,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := FromHTML(tc.html)
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestFromHTMLFirstHrefWins(t *testing.T) {
	t.Parallel()

	// A second href on the same anchor never replaces the captured one.
	got, err := FromHTML(`<a href="https://x/1" href="https://x/2">text</a>`)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, []Segment{{Text: "text", URL: "https://x/1"}})
}

func TestFromHTMLGolden(t *testing.T) {
	t.Parallel()

	testutil.RunGolden(t, filepath.Join("testdata", "*.html"), func(t *testing.T, match string) []byte {
		src, err := os.ReadFile(match)
		if err != nil {
			t.Fatal(err)
		}
		segs, err := FromHTML(string(src))
		if err != nil {
			t.Fatal(err)
		}

		var sb strings.Builder
		for _, seg := range segs {
			if seg.IsLink() {
				fmt.Fprintf(&sb, "link %q -> %s\n", seg.Text, seg.URL)
			} else {
				fmt.Fprintf(&sb, "text %q\n", seg.Text)
			}
		}
		return []byte(sb.String())
	}, *update)
}

func TestSegmentIsLink(t *testing.T) {
	t.Parallel()

	if (Segment{Text: "t"}).IsLink() {
		t.Error("plain text segment must not be a link")
	}
	if !(Segment{Text: "t", URL: "https://x/1"}).IsLink() {
		t.Error("segment with URL must be a link")
	}
}
