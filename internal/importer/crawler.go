package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Page is one crawled page: its normalized URL, extracted text and the
// depth at which it was discovered.
type Page struct {
	URL   string
	Title string
	Text  string
	Depth int
}

type Crawler struct {
	client   *http.Client
	maxPages int
}

func NewCrawler(maxPages int) *Crawler {
	return &Crawler{
		client:   &http.Client{Timeout: 20 * time.Second},
		maxPages: maxPages,
	}
}

// Crawl walks same-host links breadth-first from startURL down to
// maxDepth. URLs are normalized (fragment stripped, trailing slash
// trimmed) and deduplicated within this invocation, so each page yields
// at most one result. Unreachable pages are skipped, not fatal.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxDepth int) ([]Page, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid start url %q", startURL)
	}

	type target struct {
		url   string
		depth int
	}

	seen := map[string]bool{normalizeURL(start): true}
	queue := []target{{url: normalizeURL(start), depth: 0}}
	var pages []Page

	for len(queue) > 0 {
		if c.maxPages > 0 && len(pages) >= c.maxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		next := queue[0]
		queue = queue[1:]

		body, err := c.fetch(ctx, next.url)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreachable page", "url", next.url, "error", err)
			continue
		}

		pageText, title, err := ExtractHTML(body)
		if err != nil {
			slog.WarnContext(ctx, "skipping unparseable page", "url", next.url, "error", err)
			continue
		}
		pages = append(pages, Page{URL: next.url, Title: title, Text: pageText, Depth: next.depth})

		if next.depth >= maxDepth {
			continue
		}
		for _, link := range extractLinks(body, next.url) {
			linkURL, err := url.Parse(link)
			if err != nil || linkURL.Host != start.Host {
				continue
			}
			normalized := normalizeURL(linkURL)
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
			queue = append(queue, target{url: normalized, depth: next.depth + 1})
		}
	}
	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ragmine-crawler/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("not html: %s", contentType)
	}

	// 10MB per page is plenty; runaway responses get cut off.
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func extractLinks(body []byte, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				resolved := baseURL.ResolveReference(ref)
				if resolved.Scheme == "http" || resolved.Scheme == "https" {
					links = append(links, resolved.String())
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links
}

func normalizeURL(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	s := clone.String()
	return strings.TrimSuffix(s, "/")
}
