package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	DefaultSearchTimeout = 10 * time.Second
	queryPlaceholder     = "{query}"
	userAgent            = "MedianNews/1.0"
	maxFeedBytes         = 4 << 20
)

// Item is one entry of a search feed response.
type Item struct {
	Title       string
	Link        string
	GUID        string
	Snippet     string
	Content     string
	PublishedAt *time.Time
}

// Client queries an RSS news-search endpoint built from a URL template
// containing "{query}".
type Client struct {
	template   string
	httpClient *http.Client
	parser     *gofeed.Parser
}

func NewClient(urlTemplate string, httpClient *http.Client) (*Client, error) {
	if !strings.Contains(urlTemplate, queryPlaceholder) {
		return nil, fmt.Errorf("search URL template must contain %s", queryPlaceholder)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultSearchTimeout}
	}
	return &Client{
		template:   urlTemplate,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
	}, nil
}

// SearchURL renders the template for query.
func (c *Client) SearchURL(query string) string {
	return strings.ReplaceAll(c.template, queryPlaceholder, url.QueryEscape(query))
}

// Search fetches and parses the feed for query.
func (c *Client) Search(ctx context.Context, query string) ([]Item, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("query is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchURL(trimmed), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	parsed, err := c.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("parse search feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		items = append(items, toItem(entry))
	}
	return items, nil
}

func toItem(entry *gofeed.Item) Item {
	item := Item{
		Title:   strings.TrimSpace(entry.Title),
		Link:    strings.TrimSpace(entry.Link),
		GUID:    strings.TrimSpace(entry.GUID),
		Content: entry.Content,
		Snippet: htmlText(entry.Description),
	}
	if item.Content == "" {
		item.Content = entry.Description
	}

	switch {
	case entry.PublishedParsed != nil:
		published := entry.PublishedParsed.UTC()
		item.PublishedAt = &published
	case entry.UpdatedParsed != nil:
		updated := entry.UpdatedParsed.UTC()
		item.PublishedAt = &updated
	}
	return item
}

// htmlText flattens an HTML fragment into its visible text.
func htmlText(fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "<") {
		return strings.Join(strings.Fields(trimmed), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return strings.Join(strings.Fields(trimmed), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
