package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Page is one downloaded textbook page, ready for ingestion.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Downloader fetches a sitemap and the pages it lists.
type Downloader struct {
	client *http.Client
	log    *slog.Logger
}

func NewDownloader(timeout time.Duration, log *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type sitemapIndex struct {
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []sitemapLoc `xml:"url"`
}

// FetchSitemap returns all page URLs listed in a sitemap. Sitemap index
// files are followed one level deep.
func (d *Downloader) FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	body, err := d.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		return locs(set.URLs), nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil || len(index.Sitemaps) == 0 {
		return nil, fmt.Errorf("sitemap %s: no urls found", sitemapURL)
	}

	var urls []string
	for _, child := range index.Sitemaps {
		childURLs, err := d.FetchSitemap(ctx, child.Loc)
		if err != nil {
			d.log.Warn("child sitemap failed, skipping", "url", child.Loc, "error", err)
			continue
		}
		urls = append(urls, childURLs...)
	}
	return urls, nil
}

// DownloadPage fetches one page and extracts its title and main text.
func (d *Downloader) DownloadPage(ctx context.Context, pageURL string) (*Page, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	body, err := d.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := extractMainContent(doc.Selection)
	if len(strings.Fields(content)) < 10 {
		return nil, fmt.Errorf("page %s: not enough content", pageURL)
	}

	return &Page{URL: pageURL, Title: title, Content: content}, nil
}

// DownloadAll fetches every URL, skipping pages that fail. The returned
// slice preserves sitemap order for the pages that succeeded.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string) ([]Page, error) {
	pages := make([]Page, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			return pages, ctx.Err()
		}
		page, err := d.DownloadPage(ctx, u)
		if err != nil {
			d.log.Warn("page download failed, skipping", "url", u, "error", err)
			continue
		}
		pages = append(pages, *page)
	}
	if len(pages) == 0 && len(urls) > 0 {
		return nil, fmt.Errorf("all %d pages failed to download", len(urls))
	}
	return pages, nil
}

// fetch downloads a URL, decompressing brotli bodies and normalizing the
// charset to UTF-8. Go's transport already handles gzip.
func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}

	// Accept-Encoding is set explicitly, so the transport does not
	// decompress for us.
	var reader io.Reader = resp.Body
	switch {
	case strings.Contains(resp.Header.Get("Content-Encoding"), "br"):
		reader = brotli.NewReader(resp.Body)
	case strings.Contains(resp.Header.Get("Content-Encoding"), "gzip"):
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("GET %s: bad gzip body: %w", rawURL, err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if utf8Reader, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type")); err == nil {
		if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
			body = decoded
		}
	}
	return body, nil
}

// extractMainContent pulls the readable text out of a page, preferring
// semantic containers over the raw body.
func extractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .sidebar, .toc, .skip-link").Remove()

	selectors := []string{"main", "article", "[role='main']", ".main-content", ".content", "#content", "body"}

	var content strings.Builder
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
			}
		})
		if content.Len() > 0 {
			break
		}
	}
	if content.Len() == 0 {
		content.WriteString(doc.Find("body").Text())
	}

	lines := strings.Split(content.String(), "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func locs(entries []sitemapLoc) []string {
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls
}
