// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/bsky"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/cli"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/feed"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/filelock"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/ledger"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/logger"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/request"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/richtext"

	"github.com/mmcdole/gofeed"
)

// Names of the files kept in the state directory.
const (
	ledgerFile = "posted.txt"
	lockFile   = "run.lock"
)

var errAlreadyRunning = errors.New("already running")

func main() { cli.Main(new(bridge)) }

func (b *bridge) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&b.dry, "dry", false, "Enable dry-run mode: convert items and log posts, but don't send them or touch state.")
	fs.StringVar(&b.configPath, "config", "", "Path to the config.star `file` (defaults to config.star in the state directory).")
	fs.StringVar(&b.stateDir, "state-dir", "", "`Directory` holding the ledger and lock files.")
	fs.StringVar(&b.xrpcHost, "xrpc-host", "", "XRPC `host` to post to (defaults to https://bsky.social).")
	fs.IntVar(&b.limit, "limit", 300, "Maximum post length in characters, attribution and link included.")
	fs.IntVar(&b.maxLedger, "max-ledger", 50, "Number of posted links retained in the ledger after compaction.")
}

type bridge struct {
	running atomic.Bool
	init    sync.Once

	// configuration
	dry        bool
	configPath string
	stateDir   string
	xrpcHost   string
	identifier string
	password   string
	limit      int
	maxLedger  int
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time

	// initialized by doInit
	httpc     *http.Client
	feedc     *feed.Client
	bskyc     *bsky.Client
	logf      logger.Logf
	scrubber  *strings.Replacer
	slog      *slog.Logger
	slogLevel *slog.LevelVar

	// loaded from config
	feeds []*feedConfig

	stats runStats
}

// runStats counts per-item outcomes of a single run.
type runStats struct {
	Posted   int
	Already  int
	Rejected int
}

func (b *bridge) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	// Load configuration from environment variables.
	b.xrpcHost = cmp.Or(b.xrpcHost, env.Getenv("XRPC_HOST"), "https://bsky.social")
	b.identifier = cmp.Or(b.identifier, env.Getenv("ATPROTO_IDENTIFIER"))
	b.password = cmp.Or(b.password, env.Getenv("ATPROTO_PASSWORD"))
	b.stateDir = cmp.Or(b.stateDir, env.Getenv("STATE_DIRECTORY"))
	if b.stateDir == "" {
		xdgStateHome := env.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			xdgStateHome = filepath.Join(home, ".local", "state")
		}
		b.stateDir = filepath.Join(xdgStateHome, "rss2bsky")
	}
	if err := os.MkdirAll(b.stateDir, 0o700); err != nil {
		return err
	}
	b.configPath = cmp.Or(b.configPath, filepath.Join(b.stateDir, "config.star"))

	// Initialize internal state.
	b.init.Do(func() {
		b.doInit(ctx)
	})

	// Enable debug logging in dry-run mode.
	if b.dry {
		b.slogLevel.Set(slog.LevelDebug)
	}

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	switch command := env.Args[0]; command {
	case "run":
		return b.run(ctx)
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

func (b *bridge) doInit(ctx context.Context) {
	env := cli.GetEnv(ctx)
	b.logf = log.New(env.Stderr, "", 0).Printf
	if b.now == nil {
		b.now = time.Now
	}

	if b.httpc == nil {
		b.httpc = request.DefaultClient
	}

	if b.password != "" {
		b.scrubber = strings.NewReplacer(
			b.password, "[EXPUNGED]",
		)
	}

	b.feedc = &feed.Client{HTTPClient: b.httpc}
	b.bskyc = &bsky.Client{
		Host:       b.xrpcHost,
		HTTPClient: b.httpc,
		Scrubber:   b.scrubber,
		Now:        b.now,
	}

	l := logger.Get(ctx)
	b.slogLevel = l.Level
	b.slog = l.Logger
}

// run executes one full pipeline cycle: acquire the run lock, load the
// ledger, post every unseen item oldest to newest, then compact the ledger
// and release the lock.
func (b *bridge) run(ctx context.Context) (err error) {
	// Check if this bridge is already running.
	if b.running.Load() {
		return errAlreadyRunning
	}
	b.running.Store(true)
	defer b.running.Store(false)

	b.stats = runStats{}

	config, err := os.ReadFile(b.configPath)
	if err != nil {
		return fmt.Errorf("loading config failed: %w", err)
	}
	b.feeds, err = b.parseConfig(string(config))
	if err != nil {
		return fmt.Errorf("loading config failed: %w", err)
	}

	if b.dry {
		b.slog.Debug("dry run: skipping session creation", "identifier", b.identifier)
	} else {
		if b.identifier == "" || b.password == "" {
			return errors.New("ATPROTO_IDENTIFIER and ATPROTO_PASSWORD must be set")
		}
		if err := b.bskyc.CreateSession(ctx, b.identifier, b.password); err != nil {
			return fmt.Errorf("creating session failed: %w", err)
		}
		b.slog.Debug("session created", "did", b.bskyc.DID())
	}

	// The run lock serializes whole cycles across process invocations, for
	// example overlapping cron triggers. Dry runs mutate nothing and don't
	// take it.
	if !b.dry {
		lock, lerr := filelock.Acquire(
			filepath.Join(b.stateDir, lockFile),
			b.now().UTC().Format(time.RFC3339)+"\n",
		)
		if lerr != nil {
			return fmt.Errorf("acquiring run lock failed: %w", lerr)
		}
		defer func() {
			if rerr := lock.Release(); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	led, err := ledger.Open(filepath.Join(b.stateDir, ledgerFile), b.maxLedger)
	if err != nil {
		return err
	}
	defer led.Close()

	for _, fc := range b.feeds {
		items, err := b.feedc.Fetch(ctx, fc.URL)
		if err != nil {
			return err
		}
		b.slog.Debug("fetched feed", "feed", fc.URL, "items", len(items))

		// Feeds list newest items first; post oldest to newest so the
		// timeline reads in publication order.
		for i := len(items) - 1; i >= 0; i-- {
			if err := b.processItem(ctx, fc, items[i], led); err != nil {
				return err
			}
		}
	}

	if b.dry {
		return nil
	}

	if err := led.Rewrite(); err != nil {
		return err
	}

	b.slog.Info("run finished",
		"posted", b.stats.Posted,
		"already_posted", b.stats.Already,
		"rejected", b.stats.Rejected,
	)
	return nil
}

// processItem posts a single feed item unless it was already posted or is
// filtered out. Per-item validation failures are reported and skipped; any
// other failure aborts the remaining items of the run.
func (b *bridge) processItem(ctx context.Context, fc *feedConfig, item *gofeed.Item, led *ledger.Ledger) error {
	link := item.Link
	if link == "" {
		b.stats.Rejected++
		b.slog.Warn("item rejected: no canonical link", "feed", fc.URL, "title", item.Title)
		return nil
	}
	if item.Description == "" {
		b.stats.Rejected++
		b.slog.Warn("item rejected: no description", "feed", fc.URL, "item", link)
		return nil
	}

	if led.Seen(link) {
		b.stats.Already++
		b.logf("orig_link=%s: already posted.", link)
		return nil
	}

	if fc.BlockRule != nil {
		if blocked := b.applyRule(fc.BlockRule, item); blocked {
			b.slog.Debug("blocked by block rule", "item", link)
			return nil
		}
	}
	if fc.KeepRule != nil {
		if keep := b.applyRule(fc.KeepRule, item); !keep {
			b.slog.Debug("skipped by keep rule", "item", link)
			return nil
		}
	}

	segments, err := richtext.FromHTML(item.Description)
	if err != nil {
		// A body that failed to tokenize can't be safely cut down into a
		// partial post, so the whole run stops here.
		return fmt.Errorf("item %q: %w", link, err)
	}
	post := richtext.Compose(segments, b.limit, fc.Prefix, link)

	media, merr := feed.ItemMedia(item)
	hasImage := false
	switch {
	case errors.Is(merr, feed.ErrNoMedia):
	case merr != nil:
		b.slog.Warn("ignoring malformed media content", "item", link, "error", merr)
	case media.Rating != feed.RatingNonAdult:
		b.slog.Warn("ignoring image that might be sensitive", "item", link, "image", media.URL)
	default:
		hasImage = true
	}

	if b.dry {
		b.logf("orig_link=%s: would post: %q", link, post.Text)
		b.slog.Debug("dry run post",
			"item", link,
			"facets", len(post.Facets),
			"has_image", hasImage,
		)
		return nil
	}

	var image *bsky.Image
	if hasImage {
		image, err = b.uploadImage(ctx, media)
		if err != nil {
			return fmt.Errorf("uploading image for %q failed: %w", link, err)
		}
	}

	ref, err := b.bskyc.CreatePost(ctx, post, image)
	if err != nil {
		// Fail fast: remaining items stay unposted rather than being
		// silently skipped, and links recorded earlier in this run stay
		// recorded.
		return fmt.Errorf("posting %q failed: %w", link, err)
	}
	if err := led.Record(link); err != nil {
		return err
	}
	b.stats.Posted++
	b.logf("orig_link=%s: posted: cid=%s, uri=%s", link, ref.CID, ref.URI)
	return nil
}

func (b *bridge) uploadImage(ctx context.Context, m feed.Media) (*bsky.Image, error) {
	data, err := b.feedc.Download(ctx, m.URL)
	if err != nil {
		return nil, err
	}
	blob, err := b.bskyc.UploadBlob(ctx, data, m.Type)
	if err != nil {
		return nil, err
	}
	return &bsky.Image{Alt: m.URL, Blob: blob}, nil
}
