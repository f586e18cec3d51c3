// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mmcdole/gofeed"
)

// ErrNoMedia indicates an item carries no usable Media RSS content.
var ErrNoMedia = errors.New("no media content")

// Rating is the audience rating of an attached media content.
type Rating int

const (
	// RatingNonAdult marks media explicitly rated as not adult-only.
	RatingNonAdult Rating = iota
	// RatingOther marks any other, possibly sensitive, rating.
	RatingOther
)

// Media is an image attachment extracted from an item's Media RSS extension.
type Media struct {
	URL      string
	Type     string
	FileSize int
	Rating   Rating
}

// ItemMedia extracts the first media:content element of item, together with
// its media:rating child. It returns ErrNoMedia when the item has no media
// extension at all, and a descriptive error when the extension is present
// but missing required attributes.
func ItemMedia(item *gofeed.Item) (Media, error) {
	contents, ok := item.Extensions["media"]["content"]
	if !ok || len(contents) == 0 {
		return Media{}, ErrNoMedia
	}
	content := contents[0]

	url, ok := content.Attrs["url"]
	if !ok {
		return Media{}, errors.New("media content without 'url' attribute")
	}
	typ, ok := content.Attrs["type"]
	if !ok {
		return Media{}, errors.New("media content without 'type' attribute")
	}
	sizeAttr, ok := content.Attrs["fileSize"]
	if !ok {
		return Media{}, errors.New("media content without 'fileSize' attribute")
	}
	size, err := strconv.Atoi(sizeAttr)
	if err != nil {
		return Media{}, fmt.Errorf("media content with unparsable 'fileSize': %w", err)
	}

	ratings, ok := content.Children["rating"]
	if !ok || len(ratings) == 0 {
		return Media{}, errors.New("media content without 'rating' child")
	}

	m := Media{
		URL:      url,
		Type:     typ,
		FileSize: size,
		Rating:   RatingOther,
	}
	if ratings[0].Value == "nonadult" {
		m.Rating = RatingNonAdult
	}
	return m, nil
}
