package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/iter"
)

// ErrSourceUnavailable marks a source that could not be retrieved or parsed.
// The source contributes zero entries and the run continues.
var ErrSourceUnavailable = errors.New("source unavailable")

const (
	KindFeed    = "feed"
	KindNewsAPI = "newsapi"
)

// Source describes one retrievable media source.
type Source struct {
	ID   string
	Name string
	URL  string
	Kind string
}

// RawEntry is an entry as handed over by a source, before normalization.
// Empty strings mean the field was absent.
type RawEntry struct {
	Title           string
	Summary         string
	Link            string
	Published       string
	PublishedParsed *time.Time
}

// Batch holds everything one source produced during a run.
type Batch struct {
	Source  Source
	Rank    int // declaration order of the source
	Entries []RawEntry
	Err     error
}

// Retriever fetches the raw entries of a single source.
type Retriever interface {
	Retrieve(ctx context.Context, src Source) ([]RawEntry, error)
}

// Options tunes a collection run.
type Options struct {
	Concurrency       int
	Timeout           time.Duration
	MaxItemsPerSource int
}

// Collector retrieves all configured sources.
type Collector struct {
	sources    []Source
	retrievers map[string]Retriever
	opts       Options
}

// NewCollector creates a collector; retrievers are keyed by Source.Kind.
func NewCollector(sources []Source, retrievers map[string]Retriever, opts Options) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Collector{sources: sources, retrievers: retrievers, opts: opts}
}

// Sources returns the configured sources in declaration order.
func (c *Collector) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// Collect retrieves every source and returns one batch per source in
// declaration order, regardless of which fetch finished first. A failing
// source yields an empty batch with Err set.
func (c *Collector) Collect(ctx context.Context) []Batch {
	mapper := iter.Mapper[Source, Batch]{MaxGoroutines: c.opts.Concurrency}
	batches := mapper.Map(c.sources, func(src *Source) Batch {
		return c.collectOne(ctx, *src)
	})

	for i := range batches {
		batches[i].Rank = i
	}

	var total, failed int
	for _, b := range batches {
		total += len(b.Entries)
		if b.Err != nil {
			failed++
		}
	}
	slog.Info("collection complete", "sources", len(batches), "failed", failed, "entries", total)
	return batches
}

func (c *Collector) collectOne(ctx context.Context, src Source) Batch {
	b := Batch{Source: src}

	r, ok := c.retrievers[src.Kind]
	if !ok {
		b.Err = fmt.Errorf("%w: %s: no retriever for kind %q", ErrSourceUnavailable, src.ID, src.Kind)
		slog.Warn("skipping source", "source", src.ID, "error", b.Err)
		return b
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	entries, err := r.Retrieve(ctx, src)
	if err != nil {
		b.Err = fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src.ID, err)
		slog.Warn("source failed", "source", src.ID, "url", src.URL, "error", err)
		return b
	}

	if max := c.opts.MaxItemsPerSource; max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	b.Entries = entries
	slog.Info("parsed source", "source", src.ID, "entries", len(entries))
	return b
}
