package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func redirectorHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	return parsed.Hostname()
}

func TestResolverPassesThroughDirectLinks(t *testing.T) {
	t.Parallel()

	r := NewResolver([]string{"news.google.com"}, time.Second, nil)
	got, err := r.Resolve(context.Background(), Item{Link: "https://leftdaily.example/a?utm_source=x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "https://leftdaily.example/a?utm_source=x" {
		t.Fatalf("unexpected link %q", got)
	}
}

func TestResolverFollowsRedirectChain(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hop1":
			http.Redirect(w, r, "/hop2", http.StatusFound)
		case "/hop2":
			// The publisher host is never contacted.
			http.Redirect(w, r, "http://localhost:1/story?utm=1", http.StatusMovedPermanently)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewResolver([]string{redirectorHost(t, srv)}, time.Second, srv.Client())
	got, err := r.Resolve(context.Background(), Item{Link: srv.URL + "/hop1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "http://localhost:1/story?utm=1" {
		t.Fatalf("unexpected resolved link %q", got)
	}
}

func TestResolverRetriesWithGetWhenHeadRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		http.Redirect(w, r, "http://localhost:1/get-only", http.StatusFound)
	}))
	defer srv.Close()

	r := NewResolver([]string{redirectorHost(t, srv)}, time.Second, srv.Client())
	got, err := r.Resolve(context.Background(), Item{Link: srv.URL + "/x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "http://localhost:1/get-only" {
		t.Fatalf("unexpected resolved link %q", got)
	}
}

func TestResolverFallsBackToContentLink(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>interstitial</html>"))
	}))
	defer srv.Close()

	host := redirectorHost(t, srv)
	item := Item{
		Link:    srv.URL + "/articles/abc",
		Content: `<p><a href="http://` + host + `/self">self</a> <a href="https://rightreport.example/story">Story</a></p>`,
	}

	r := NewResolver([]string{host}, time.Second, srv.Client())
	got, err := r.Resolve(context.Background(), item)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "https://rightreport.example/story" {
		t.Fatalf("unexpected fallback link %q", got)
	}
}

func TestResolverFailsWithoutFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := NewResolver([]string{redirectorHost(t, srv)}, time.Second, srv.Client())
	_, err := r.Resolve(context.Background(), Item{Link: srv.URL + "/gone", Content: "plain text"})
	if !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}

	_, err = r.Resolve(context.Background(), Item{})
	if !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable for empty item, got %v", err)
	}
}
