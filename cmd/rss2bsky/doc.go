// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Rss2bsky cross-posts new items from RSS feeds to Bluesky.

It is meant to run periodically (for example, from cron): each run fetches the
configured feeds, converts every not-yet-posted item's HTML body into a
length-bounded plain-text post with link facets, posts it, and records the
item's canonical link so the next run never posts it again.

# Usage

	$ rss2bsky [flags...] run

# Environment Variables

The rss2bsky program relies on the following environment variables:

  - ATPROTO_IDENTIFIER: Bluesky handle or DID used to create a session.
  - ATPROTO_PASSWORD: Bluesky app password.
  - XRPC_HOST: XRPC host to talk to. Defaults to https://bsky.social.
  - STATE_DIRECTORY: directory holding the posted-links ledger and the run
    lock file. Defaults to $XDG_STATE_HOME/rss2bsky.

# Configuration

rss2bsky loads its configuration from a config.star file in the state
directory (override with -config). This file is written in Starlark and
defines a list of feeds, for example:

	feeds = [
	    feed(
	        url = "https://mstdn.example.com/@someone.rss",
	        prefix = "[マストドン投稿から]:",
	        block_rule = lambda item: "#nobsky" in item.description,
	    ),
	]

Each feed has a URL, an optional attribution prefix appended to every post
before the item's canonical link, and optional block and keep rules.

Block and keep rules are Starlark functions that take a feed item as an
argument and return a boolean value. If a block rule returns true, the item
is not posted. If a keep rule is set, only items for which it returns true
are posted.

The feed item passed to block_rule and keep_rule is a struct with the
following keys:

  - title: The title of the item.
  - url: The canonical link of the item.
  - description: The HTML body of the item.
  - categories: A list of categories the item belongs to.

# State

rss2bsky keeps a ledger of already-posted canonical links, one per line, in
the posted.txt file inside the state directory. The ledger is appended to
immediately after every successful post and compacted at the end of each run,
keeping the most recent entries (see -max-ledger).

A whole run is serialized by an advisory lock on the run.lock file in the
state directory. If another run currently holds the lock, rss2bsky exits
immediately instead of waiting. The lock file contents (a timestamp) are
purely diagnostic.

Items attaching a Media RSS image rated "nonadult" are posted with the image
embedded; any other rating is skipped with a warning.

In dry-run mode (-dry) rss2bsky still fetches, converts and logs every post
it would make, but creates no session, posts nothing and leaves the ledger
and lock file untouched.
*/
package main

import (
	_ "embed"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
