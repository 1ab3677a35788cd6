package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>search</title>
<item>
<title>Senate passes budget</title>
<link>https://news.google.com/articles/abc</link>
<guid>abc</guid>
<pubDate>Mon, 12 Oct 2026 10:00:00 GMT</pubDate>
<description>&lt;a href="https://leftdaily.example/budget"&gt;Senate passes budget&lt;/a&gt;&amp;nbsp; Left Daily</description>
</item>
<item>
<title>Undated item</title>
<link>https://rightreport.example/undated</link>
</item>
</channel>
</rss>`

func TestClientSearchParsesFeed(t *testing.T) {
	t.Parallel()

	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(searchFeed))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/rss?q={query}&hl=en", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	items, err := client.Search(context.Background(), "senate budget")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := <-queries; got != "senate budget" {
		t.Fatalf("unexpected query %q", got)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "Senate passes budget" || first.Link != "https://news.google.com/articles/abc" || first.GUID != "abc" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published_at: %v", first.PublishedAt)
	}
	if !strings.Contains(first.Snippet, "Senate passes budget") || strings.Contains(first.Snippet, "<a") {
		t.Fatalf("snippet should be plain text, got %q", first.Snippet)
	}
	if !strings.Contains(first.Content, `href="https://leftdaily.example/budget"`) {
		t.Fatalf("content should keep markup, got %q", first.Content)
	}
	if items[1].PublishedAt != nil {
		t.Fatalf("undated item should have nil published_at")
	}
}

func TestClientSearchRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/rss?q={query}", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Search(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewClientRequiresPlaceholder(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("https://news.example/rss", nil); err == nil {
		t.Fatalf("expected error for template without placeholder")
	}

	client, err := NewClient("https://news.example/rss?q={query}", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := client.SearchURL(`"tax cuts"`); got != "https://news.example/rss?q=%22tax+cuts%22" {
		t.Fatalf("SearchURL = %q", got)
	}
}
