// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package richtext converts HTML fragments into a flat sequence of plain-text
// and link segments, and composes those segments into a length-bounded post
// with byte-offset link facets.
package richtext

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Segment is a run of extracted content in document order. URL is empty for
// plain text and holds the link target otherwise.
type Segment struct {
	Text string
	URL  string
}

// IsLink reports whether the segment is a hyperlink.
func (s Segment) IsLink() bool { return s.URL != "" }

type parsePhase int

const (
	phaseIdle parsePhase = iota
	phasePlainText
	phaseLink
)

// segmenter is the single-slot parse state threaded through tokenization.
type segmenter struct {
	segs  []Segment
	depth int

	phase     parsePhase
	buf       strings.Builder
	href      string // set while phase == phaseLink
	linkDepth int    // tag depth at which the current link opened
}

// FromHTML tokenizes content as HTML and returns the ordered segment
// sequence. Anchor elements with an href attribute become link segments, <br>
// becomes a literal newline, and all other markup is stripped. A tokenizer
// failure aborts the whole conversion; no partial result is returned.
func FromHTML(content string) ([]Segment, error) {
	var sg segmenter

	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("richtext: tokenizing HTML: %w", err)
			}
			sg.flush()
			return sg.segs, nil
		case html.TextToken:
			sg.text(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			sg.startTag(string(name), hasAttr, z)
			if tt == html.SelfClosingTagToken {
				sg.endTag(string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			sg.endTag(string(name))
		}
		// Doctype and comment tokens carry no content.
	}
}

// text appends character data to whichever accumulation is active, starting a
// plain-text one if idle. Runes are carried over verbatim.
func (sg *segmenter) text(s string) {
	if s == "" {
		return
	}
	if sg.phase == phaseIdle {
		sg.phase = phasePlainText
	}
	sg.buf.WriteString(s)
}

// voidElements never take an end tag; they must not contribute to the depth
// counter, or a bare <br> inside an anchor would desync it.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func (sg *segmenter) startTag(name string, hasAttr bool, z *html.Tokenizer) {
	switch name {
	case "br":
		sg.text("\n")
	case "a":
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			if string(key) == "href" {
				sg.startLink(string(val))
				break
			}
		}
	}
	if !voidElements[name] {
		sg.depth++
	}
}

// startLink begins link accumulation. A nested anchor while one is already
// open is ignored: the first href wins.
func (sg *segmenter) startLink(href string) {
	if sg.phase == phaseLink {
		return
	}
	sg.flush()
	sg.phase = phaseLink
	sg.href = href
	sg.linkDepth = sg.depth
}

func (sg *segmenter) endTag(name string) {
	if !voidElements[name] {
		sg.depth--
	}
	if name == "a" {
		sg.flush()
	}
}

// flush emits the pending accumulation as a segment and resets to idle. A
// link that closes deeper than it opened is malformed and dropped.
func (sg *segmenter) flush() {
	switch sg.phase {
	case phasePlainText:
		sg.segs = append(sg.segs, Segment{Text: sg.buf.String()})
	case phaseLink:
		if sg.depth <= sg.linkDepth {
			sg.segs = append(sg.segs, Segment{Text: sg.buf.String(), URL: sg.href})
		}
	}
	sg.phase = phaseIdle
	sg.buf.Reset()
	sg.href = ""
	sg.linkDepth = 0
}
