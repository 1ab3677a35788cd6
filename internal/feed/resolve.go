package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultResolveTimeout = 3 * time.Second
	maxRedirects          = 10
)

var ErrUnresolvable = errors.New("link could not be resolved")

// Resolver turns search-feed links on known redirector hosts into the
// publisher URL they point at. Links on other hosts are returned unchanged.
type Resolver struct {
	httpClient    *http.Client
	timeout       time.Duration
	redirectHosts []string
}

func NewResolver(redirectHosts []string, timeout time.Duration, httpClient *http.Client) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	hosts := make([]string, 0, len(redirectHosts))
	for _, host := range redirectHosts {
		if trimmed := strings.ToLower(strings.TrimSpace(host)); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}

	r := &Resolver{timeout: timeout, redirectHosts: hosts}
	client := *httpClient
	// Stop at the first hop that leaves the redirector; the publisher page
	// itself is never fetched here.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if !r.isRedirector(req.URL.String()) {
			return http.ErrUseLastResponse
		}
		return nil
	}
	r.httpClient = &client
	return r
}

// Resolve returns the destination URL for item. It follows redirects first and
// falls back to the first absolute link in the item content.
func (r *Resolver) Resolve(ctx context.Context, item Item) (string, error) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if isAbsoluteHTTP(link) && !r.isRedirector(link) {
		return link, nil
	}

	var followErr error
	if isAbsoluteHTTP(link) {
		resolved, err := r.follow(ctx, link)
		if err == nil && !r.isRedirector(resolved) {
			return resolved, nil
		}
		followErr = err
		if followErr == nil {
			followErr = fmt.Errorf("redirect ended on %s", hostOf(resolved))
		}
	}

	if fallback := r.contentLink(item.Content); fallback != "" {
		return fallback, nil
	}
	if followErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, followErr)
	}
	return "", ErrUnresolvable
}

func (r *Resolver) follow(ctx context.Context, link string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	final, status, err := r.do(ctx, http.MethodHead, link)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		final, status, err = r.do(ctx, http.MethodGet, link)
	}
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("resolve returned status %d", status)
	}
	return final, nil
}

func (r *Resolver) do(ctx context.Context, method, link string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	final := link
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location, err := resp.Location()
		if err != nil {
			return "", resp.StatusCode, fmt.Errorf("redirect without location: %w", err)
		}
		return location.String(), http.StatusOK, nil
	}
	return final, resp.StatusCode, nil
}

func (r *Resolver) contentLink(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}

	var found string
	doc.Find(`a[href^="http"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if isAbsoluteHTTP(href) && !r.isRedirector(href) {
			found = href
			return false
		}
		return true
	})
	return found
}

func (r *Resolver) isRedirector(link string) bool {
	host := hostOf(link)
	if host == "" {
		return false
	}
	for _, candidate := range r.redirectHosts {
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

func hostOf(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func isAbsoluteHTTP(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
