package chatfeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/teslashibe/go-commander/internal/httpc"
)

// SourceFeed labels messages read from RSS/Atom feeds.
const SourceFeed = "feed"

// DefaultFeedInterval is how often feeds are polled.
const DefaultFeedInterval = 60 * time.Second

const maxFeedContent = 500

// Feed polls an RSS or Atom feed and pushes unseen items into a Buffer.
type Feed struct {
	url      string
	interval time.Duration
	buf      *Buffer
	parser   *gofeed.Parser
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]bool // keys listed by the last poll
}

// NewFeed creates a poller for url.
func NewFeed(url string, interval time.Duration, buf *Buffer, logger *slog.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultFeedInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.Client = httpc.Client
	return &Feed{
		url:      url,
		interval: interval,
		buf:      buf,
		parser:   parser,
		logger:   logger.With("component", "chatfeed.feed", "url", url),
		seen:     make(map[string]bool),
	}
}

// Poll fetches the feed once and returns how many new items were buffered.
func (f *Feed) Poll(ctx context.Context) (int, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", f.url, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	added := 0
	listed := make(map[string]bool, len(feed.Items))
	// Feeds list newest first; buffer oldest first.
	for i := len(feed.Items) - 1; i >= 0; i-- {
		item := feed.Items[i]
		key := itemKey(item)
		if key == "" || listed[key] {
			continue
		}
		listed[key] = true
		if f.seen[key] {
			continue
		}
		content := itemContent(item)
		if content == "" {
			continue
		}
		at := time.Now()
		if item.PublishedParsed != nil {
			at = *item.PublishedParsed
		}
		f.buf.Push(Message{
			ID:      key,
			Source:  SourceFeed,
			Author:  feedAuthor(feed, item),
			Content: content,
			At:      at,
		})
		added++
	}
	f.seen = listed
	return added, nil
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next tick.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		n, err := f.Poll(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			f.logger.Warn("feed poll failed", "error", err)
		case n > 0:
			f.logger.Debug("feed items buffered", "count", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func itemKey(item *gofeed.Item) string {
	switch {
	case item.GUID != "":
		return item.GUID
	case item.Link != "":
		return item.Link
	default:
		return item.Title
	}
}

func itemContent(item *gofeed.Item) string {
	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	desc = plainText(desc)
	title := strings.TrimSpace(item.Title)
	text := title
	switch {
	case title == "":
		text = desc
	case desc != "" && desc != title:
		text = title + ": " + desc
	}
	if r := []rune(text); len(r) > maxFeedContent {
		text = string(r[:maxFeedContent]) + "..."
	}
	return text
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true,
}

// plainText flattens an HTML fragment to its visible text.
func plainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	var b strings.Builder
	writeText(&b, doc.Selection)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch name := goquery.NodeName(c); {
		case name == "#text":
			b.WriteString(c.Text())
		case name == "script", name == "style", name == "#comment":
		case blockTags[name]:
			b.WriteByte(' ')
			writeText(b, c)
			b.WriteByte(' ')
		default:
			writeText(b, c)
		}
	})
}

func feedAuthor(feed *gofeed.Feed, item *gofeed.Item) string {
	if feed.Title != "" {
		return feed.Title
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		return item.Authors[0].Name
	}
	return "feed"
}
