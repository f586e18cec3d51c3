// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package richtext

import (
	"strings"
	"unicode/utf8"
)

// ellipsis marks a truncated body, placed before the attribution prefix.
const ellipsis = "...\n"

// Facet tags a byte range of composed post text as a hyperlink. Offsets are
// half-open byte positions into the final UTF-8 string, as the posting
// protocol requires, and always fall on rune boundaries.
type Facet struct {
	ByteStart int
	ByteEnd   int
	URI       string
}

// Post is composed post text with its ordered link facets.
type Post struct {
	Text   string
	Facets []Facet
}

// Compose walks segments in order and builds post text that fits within limit
// characters, followed by the attribution prefix and the item's canonical
// link tagged with a final facet.
//
// Space for the ellipsis marker, prefix and link is reserved up front, so the
// body budget is limit less the character counts of all three. The budget is
// measured in runes while facet offsets are bytes; the two are tracked
// independently so that truncation never splits a multi-byte character and
// facets stay byte-accurate on non-ASCII content.
func Compose(segments []Segment, limit int, prefix, link string) Post {
	var (
		b      strings.Builder
		facets []Facet
	)

	budget := limit - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(link) - utf8.RuneCountInString(ellipsis)
	if budget < 0 {
		budget = 0
	}

	var truncated bool
	for _, seg := range segments {
		byteStart := b.Len()

		if n := utf8.RuneCountInString(seg.Text); n > budget {
			b.WriteString(headRunes(seg.Text, budget))
			truncated = true
			budget = 0
		} else {
			b.WriteString(seg.Text)
			budget -= n
		}

		// The facet is recorded even if the display text was cut short: the
		// byte range covers exactly what made it into the output.
		if seg.IsLink() {
			facets = append(facets, Facet{ByteStart: byteStart, ByteEnd: b.Len(), URI: seg.URL})
		}

		if truncated {
			break
		}
	}

	if truncated {
		b.WriteString(ellipsis)
	}
	b.WriteString(prefix)

	byteStart := b.Len()
	b.WriteString(link)
	facets = append(facets, Facet{ByteStart: byteStart, ByteEnd: b.Len(), URI: link})

	return Post{Text: b.String(), Facets: facets}
}

// headRunes returns the first n runes of s.
func headRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
