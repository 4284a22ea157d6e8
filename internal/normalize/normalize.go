// Package normalize turns raw source entries into searchable items.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"

	"github.com/TobiSchelling/mediawatch/internal/collect"
)

// Placeholders substituted for absent fields.
const (
	NoTitle          = "No title"
	UnknownPublished = "Unknown"
)

// ExcerptLength is the number of summary characters kept in an excerpt.
const ExcerptLength = 200

// ErrMalformedTimestamp marks a published date that could not be parsed.
// The item is kept; it only drops out of the timeline and the recency filter.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Item is a normalized entry. NormalizedText is the only surface the matcher
// inspects.
type Item struct {
	SourceID       string     `json:"source_id"`
	SourceName     string     `json:"source_name"`
	SourceRank     int        `json:"source_rank"`
	Seq            int        `json:"seq"`
	Title          string     `json:"title"`
	Link           string     `json:"link"`
	PublishedRaw   string     `json:"published"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Summary        string     `json:"summary"`
	SummaryExcerpt string     `json:"summary_excerpt"`
	NormalizedText string     `json:"normalized_text"`
}

// Options controls the recency filter.
type Options struct {
	Now      time.Time
	DaysBack int // <= 0 disables the recency filter
}

// Cutoff returns the oldest publish time still inside the window.
func (o Options) Cutoff() time.Time {
	return o.Now.AddDate(0, 0, -o.DaysBack)
}

// Normalize converts a raw entry into an Item. It returns false when the
// entry carries a parseable publish time older than the recency window.
func Normalize(raw collect.RawEntry, src collect.Source, opts Options) (Item, bool) {
	published, err := PublishedTime(raw)
	if err != nil {
		slog.Debug("keeping entry with unparseable date", "source", src.ID, "title", raw.Title, "error", err)
	}
	if published != nil && opts.DaysBack > 0 && published.Before(opts.Cutoff()) {
		return Item{}, false
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = NoTitle
	}
	summary := strings.TrimSpace(raw.Summary)
	publishedRaw := strings.TrimSpace(raw.Published)
	if publishedRaw == "" {
		publishedRaw = UnknownPublished
	}

	return Item{
		SourceID:       src.ID,
		SourceName:     src.Name,
		Title:          title,
		Link:           strings.TrimSpace(raw.Link),
		PublishedRaw:   publishedRaw,
		PublishedAt:    published,
		Summary:        summary,
		SummaryExcerpt: Excerpt(summary),
		NormalizedText: Text(title) + " " + Text(summary),
	}, true
}

// Text returns the matching form of s: NFC-composed and lowercased.
func Text(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// PublishedTime returns the entry's publish time in UTC. A nil time with a
// nil error means the entry has no date at all.
func PublishedTime(raw collect.RawEntry) (*time.Time, error) {
	if raw.PublishedParsed != nil {
		t := raw.PublishedParsed.UTC()
		return &t, nil
	}
	s := strings.TrimSpace(raw.Published)
	if s == "" {
		return nil, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, s, err)
	}
	t = t.UTC()
	return &t, nil
}

// Excerpt shortens a summary to ExcerptLength characters followed by "...".
func Excerpt(summary string) string {
	if summary == "" {
		return ""
	}
	if utf8.RuneCountInString(summary) <= ExcerptLength {
		return summary + "..."
	}
	runes := []rune(summary)
	return string(runes[:ExcerptLength]) + "..."
}

// Batch normalizes every entry of a batch, stamping source rank and entry
// order so items can be merged back into declaration order later.
func Batch(b collect.Batch, opts Options) []Item {
	items := make([]Item, 0, len(b.Entries))
	dropped := 0
	for i, raw := range b.Entries {
		item, ok := Normalize(raw, b.Source, opts)
		if !ok {
			dropped++
			continue
		}
		item.SourceRank = b.Rank
		item.Seq = i
		items = append(items, item)
	}
	if dropped > 0 {
		slog.Debug("dropped stale entries", "source", b.Source.ID, "dropped", dropped)
	}
	return items
}
