package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// FeedRetriever reads RSS/Atom/JSON feeds over HTTP.
type FeedRetriever struct {
	client    *http.Client
	userAgent string
	limiter   *Limiter
	robots    *RobotsChecker
}

// NewFeedRetriever creates a feed retriever. limiter and robots may be nil.
func NewFeedRetriever(client *http.Client, userAgent string, limiter *Limiter, robots *RobotsChecker) *FeedRetriever {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedRetriever{client: client, userAgent: userAgent, limiter: limiter, robots: robots}
}

// Retrieve fetches and parses a feed. Entry order follows the feed document.
func (fr *FeedRetriever) Retrieve(ctx context.Context, src Source) ([]RawEntry, error) {
	if fr.robots != nil && !fr.robots.IsAllowed(ctx, src.URL) {
		return nil, fmt.Errorf("disallowed by robots.txt")
	}
	if fr.limiter != nil {
		if err := fr.limiter.Wait(ctx, src.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if fr.userAgent != "" {
		req.Header.Set("User-Agent", fr.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := fr.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	// gofeed parsers keep per-document state, so each retrieval gets its own.
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	entries := make([]RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, parseItem(item))
	}
	return entries, nil
}

func parseItem(item *gofeed.Item) RawEntry {
	link := item.Link
	if link == "" {
		link = item.GUID
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return RawEntry{
		Title:           strings.TrimSpace(item.Title),
		Summary:         htmlToText(summary),
		Link:            strings.TrimSpace(link),
		Published:       strings.TrimSpace(item.Published),
		PublishedParsed: item.PublishedParsed,
	}
}

// htmlToText flattens feed markup to plain text with collapsed whitespace.
func htmlToText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// SourceName derives a display label from a feed URL host.
func SourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

// SourceID turns a display name into a stable lowercase identifier.
func SourceID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
