package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crawlSite(pages map[string]string) *httptest.Server {
	mux := http.NewServeMux()
	for path, body := range pages {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		})
	}
	return httptest.NewServer(mux)
}

func TestCrawler_FollowsSameHostLinks(t *testing.T) {
	srv := crawlSite(map[string]string{
		"/": `<html><head><title>Home</title></head><body>
			<p>welcome home</p>
			<a href="/about">about</a>
			<a href="https://elsewhere.example.com/other">external</a>
		</body></html>`,
		"/about": `<html><head><title>About</title></head><body><p>about us</p></body></html>`,
	})
	defer srv.Close()

	crawler := NewCrawler(10)
	pages, err := crawler.Crawl(context.Background(), srv.URL, 2)

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Home", pages[0].Title)
	assert.Equal(t, 0, pages[0].Depth)
	assert.Contains(t, pages[0].Text, "welcome home")
	assert.Equal(t, "About", pages[1].Title)
	assert.Equal(t, 1, pages[1].Depth)
}

func TestCrawler_RespectsMaxDepth(t *testing.T) {
	srv := crawlSite(map[string]string{
		"/":      `<html><body><p>root</p><a href="/one">one</a></body></html>`,
		"/one":   `<html><body><p>one</p><a href="/two">two</a></body></html>`,
		"/two":   `<html><body><p>two</p><a href="/three">three</a></body></html>`,
		"/three": `<html><body><p>three</p></body></html>`,
	})
	defer srv.Close()

	crawler := NewCrawler(100)
	pages, err := crawler.Crawl(context.Background(), srv.URL, 1)

	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawler_RespectsMaxPages(t *testing.T) {
	site := map[string]string{
		"/": `<html><body><p>root</p><a href="/p0">l</a><a href="/p1">l</a><a href="/p2">l</a><a href="/p3">l</a></body></html>`,
	}
	for i := 0; i < 4; i++ {
		site[fmt.Sprintf("/p%d", i)] = `<html><body><p>page</p></body></html>`
	}
	srv := crawlSite(site)
	defer srv.Close()

	crawler := NewCrawler(2)
	pages, err := crawler.Crawl(context.Background(), srv.URL, 3)

	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawler_DeduplicatesByNormalizedURL(t *testing.T) {
	srv := crawlSite(map[string]string{
		"/": `<html><body><p>root</p>
			<a href="/page">a</a>
			<a href="/page/">b</a>
			<a href="/page#section">c</a>
		</body></html>`,
		"/page": `<html><body><p>page</p></body></html>`,
	})
	defer srv.Close()

	crawler := NewCrawler(10)
	pages, err := crawler.Crawl(context.Background(), srv.URL, 2)

	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawler_SkipsUnreachablePages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>root</p><a href="/missing">gone</a><a href="/ok">ok</a></body></html>`)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>fine</p></body></html>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	crawler := NewCrawler(10)
	pages, err := crawler.Crawl(context.Background(), srv.URL, 1)

	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawler_SkipsNonHTMLResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>root</p><a href="/data.json">data</a></body></html>`)
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"a":1}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	crawler := NewCrawler(10)
	pages, err := crawler.Crawl(context.Background(), srv.URL, 1)

	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestCrawler_InvalidStartURL(t *testing.T) {
	crawler := NewCrawler(10)
	_, err := crawler.Crawl(context.Background(), "not a url", 1)
	assert.Error(t, err)
}
