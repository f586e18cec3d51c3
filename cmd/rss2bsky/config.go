// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Feed configuration.

// defaultPrefix is the attribution line placed before the canonical link of
// every post when a feed doesn't set its own.
const defaultPrefix = "[マストドン投稿から]:"

type feedConfig struct {
	URL       string             `json:"url"`
	Prefix    string             `json:"prefix,omitempty"`
	BlockRule *starlark.Function `json:"-"`
	KeepRule  *starlark.Function `json:"-"`
}

func (fc *feedConfig) String() string        { return fmt.Sprintf("<feed url=%q>", fc.URL) }
func (fc *feedConfig) Type() string          { return "feed" }
func (fc *feedConfig) Freeze()               {} // immutable
func (fc *feedConfig) Truth() starlark.Bool  { return starlark.Bool(fc.URL != "") }
func (fc *feedConfig) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", fc.Type()) }

func feedBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected positional arguments")
	}
	fc := new(feedConfig)
	if err := starlark.UnpackArgs("feed", args, kwargs,
		"url", &fc.URL,
		"prefix?", &fc.Prefix,
		"block_rule?", &fc.BlockRule,
		"keep_rule?", &fc.KeepRule,
	); err != nil {
		return nil, err
	}
	if fc.Prefix == "" {
		fc.Prefix = defaultPrefix
	}
	return fc, nil
}

func (b *bridge) parseConfig(config string) ([]*feedConfig, error) {
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { b.logf("%s", msg) },
		},
		"config.star",
		config,
		starlark.StringDict{
			"feed": starlark.NewBuiltin("feed", feedBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	feedsList, ok := globals["feeds"].(*starlark.List)
	if !ok {
		return nil, errors.New("feeds must be defined and be a list")
	}

	var feeds []*feedConfig

	iter := feedsList.Iterate()
	defer iter.Done()

	var elem starlark.Value
	for iter.Next(&elem) {
		fc, ok := elem.(*feedConfig)
		if !ok {
			continue
		}
		if _, err := url.Parse(fc.URL); err != nil {
			return nil, fmt.Errorf("invalid URL %q of feed", fc.URL)
		}
		feeds = append(feeds, fc)
	}

	return feeds, nil
}

// applyRule evaluates a Starlark block or keep rule against a feed item. A
// rule that fails or returns a non-boolean counts as false.
func (b *bridge) applyRule(rule *starlark.Function, item *gofeed.Item) bool {
	var categories []starlark.Value
	for _, category := range item.Categories {
		categories = append(categories, starlark.String(category))
	}
	val, err := starlark.Call(
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { b.slog.Info(msg) },
		},
		rule,
		starlark.Tuple{starlarkstruct.FromStringDict(
			starlarkstruct.Default,
			starlark.StringDict{
				"title":       starlark.String(item.Title),
				"url":         starlark.String(item.Link),
				"description": starlark.String(item.Description),
				"categories":  starlark.NewList(categories),
			},
		)},
		[]starlark.Tuple{},
	)
	if err != nil {
		b.slog.Warn("applying rule for item", "item", item.Link, "error", err)
		return false
	}

	ret, ok := val.(starlark.Bool)
	if !ok {
		b.slog.Warn("rule returned non-boolean value", "item", item.Link)
		return false
	}
	return bool(ret)
}
