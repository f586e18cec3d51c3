// © 2025 Mizunashi Mana. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package ledger keeps a durable record of feed item links that were already
// posted, so that re-runs never double-post.
//
// The backing store is a plain UTF-8 text file with one link per line, no
// header, no escaping. A link containing a newline is not representable;
// that's a known limitation. The file is appended to right after each
// successful post and rewritten once at the end of a cycle to cap its growth,
// keeping only the most recent entries.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/atomicio"
	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/util/set"
)

// ErrRewritten is returned by Record after the cycle's final Rewrite.
var ErrRewritten = errors.New("ledger already rewritten")

// Ledger is the loaded dedup state for one pipeline cycle. It is not safe for
// concurrent use: a single process owns the backing store for the whole
// cycle, guarded by an advisory lock taken by the caller.
type Ledger struct {
	path string
	max  int

	seen   set.Set[string] // membership index over every line ever read
	recent []string        // most recent max links in arrival order
	aw     *os.File        // append handle for Record

	rewritten bool
}

// Open reads the whole backing store at path, creating it first if absent.
// Duplicate lines collapse into the membership set while the retention window
// keeps only the most recent maxRetained lines in arrival order.
func Open(path string, maxRetained int) (*Ledger, error) {
	aw, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}

	l := &Ledger{
		path: path,
		max:  maxRetained,
		seen: set.New[string](maxRetained),
		aw:   aw,
	}

	f, err := os.Open(path)
	if err != nil {
		aw.Close()
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if line == "" {
			continue
		}
		l.seen[line] = struct{}{}
		l.push(line)
	}
	if err := s.Err(); err != nil {
		aw.Close()
		return nil, fmt.Errorf("ledger: read %q: %w", path, err)
	}

	return l, nil
}

func (l *Ledger) push(link string) {
	l.recent = append(l.recent, link)
	if len(l.recent) > l.max {
		l.recent = l.recent[len(l.recent)-l.max:]
	}
}

// Seen reports whether link was already posted.
func (l *Ledger) Seen(link string) bool { return l.seen.Has(link) }

// Record durably appends link to the backing store. It returns only after
// the write reached stable storage: a crash between Record and the cycle's
// final Rewrite must not lose the fact that the link was posted.
func (l *Ledger) Record(link string) error {
	if l.rewritten {
		return ErrRewritten
	}
	if _, err := fmt.Fprintln(l.aw, link); err != nil {
		return fmt.Errorf("ledger: append %q: %w", l.path, err)
	}
	if err := l.aw.Sync(); err != nil {
		return fmt.Errorf("ledger: sync %q: %w", l.path, err)
	}
	l.seen.Add(link)
	l.push(link)
	return nil
}

// Retained returns the links inside the retention window, oldest first.
func (l *Ledger) Retained() []string { return l.recent }

// Rewrite atomically replaces the backing store with the retention window,
// one link per line, oldest first. It is terminal for the cycle: Record
// fails afterwards.
func (l *Ledger) Rewrite() error {
	var b strings.Builder
	for _, link := range l.recent {
		b.WriteString(link)
		b.WriteByte('\n')
	}
	if err := atomicio.WriteFile(l.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("ledger: rewrite %q: %w", l.path, err)
	}
	l.rewritten = true
	return nil
}

// Close releases the append handle.
func (l *Ledger) Close() error { return l.aw.Close() }
