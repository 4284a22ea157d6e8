package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// NewsAPIBaseURL is the NewsAPI "everything" endpoint.
const NewsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIOptions configures a NewsAPI retriever.
type NewsAPIOptions struct {
	APIKeyEnv string
	Query     string
	PageSize  int
	DaysBack  int
	Now       func() time.Time
}

// NewsAPIRetriever searches NewsAPI and hands the hits over as raw entries.
type NewsAPIRetriever struct {
	apiKey string
	client *http.Client
	opts   NewsAPIOptions
}

// NewNewsAPIRetriever creates a NewsAPI retriever reading its key from opts.APIKeyEnv.
func NewNewsAPIRetriever(client *http.Client, opts NewsAPIOptions) *NewsAPIRetriever {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NewsAPIRetriever{
		apiKey: os.Getenv(opts.APIKeyEnv),
		client: client,
		opts:   opts,
	}
}

// IsConfigured returns whether the API key is available.
func (n *NewsAPIRetriever) IsConfigured() bool {
	return n.apiKey != ""
}

// Source returns the source descriptor for this retriever.
func (n *NewsAPIRetriever) Source() Source {
	return Source{ID: KindNewsAPI, Name: "NewsAPI", URL: NewsAPIBaseURL, Kind: KindNewsAPI}
}

// Retrieve runs the configured query against src.URL.
func (n *NewsAPIRetriever) Retrieve(ctx context.Context, src Source) ([]RawEntry, error) {
	if n.apiKey == "" {
		return nil, errors.New("NewsAPI key not set")
	}

	now := n.opts.Now()
	params := url.Values{
		"q":        {n.opts.Query},
		"language": {"en"},
		"pageSize": {strconv.Itoa(n.opts.PageSize)},
		"sortBy":   {"publishedAt"},
		"to":       {now.Format("2006-01-02")},
	}
	if n.opts.DaysBack > 0 {
		params.Set("from", now.AddDate(0, 0, -n.opts.DaysBack).Format("2006-01-02"))
	}

	endpoint := src.URL
	if endpoint == "" {
		endpoint = NewsAPIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling NewsAPI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NewsAPI returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
			Content     string `json:"content"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding NewsAPI response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("NewsAPI status %q: %s", result.Status, result.Message)
	}

	entries := make([]RawEntry, 0, len(result.Articles))
	for _, a := range result.Articles {
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		summary := a.Description
		if summary == "" {
			summary = a.Content
		}

		entry := RawEntry{
			Title:     strings.TrimSpace(a.Title),
			Summary:   htmlToText(summary),
			Link:      strings.TrimSpace(a.URL),
			Published: strings.TrimSpace(a.PublishedAt),
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			entry.PublishedParsed = &t
		}
		entries = append(entries, entry)
	}

	slog.Info("fetched NewsAPI results", "query", n.opts.Query, "entries", len(entries))
	return entries, nil
}
