// Package fetch retrieves job postings for intake. The plain HTTP path
// handles static pages; postings rendered client-side fall back to a
// headless browser when enabled.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	requestTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// minUsefulLength is the point below which a fetched page is assumed to
	// be a client-rendered shell and worth retrying in the browser.
	minUsefulLength = 200
)

// Fetcher retrieves and extracts posting text.
type Fetcher struct {
	client     *http.Client
	useBrowser bool
}

// NewFetcher creates a fetcher. When useBrowser is set, pages that come back
// nearly empty are refetched with headless Chrome.
func NewFetcher(useBrowser bool) *Fetcher {
	return &Fetcher{
		client:     &http.Client{Timeout: requestTimeout},
		useBrowser: useBrowser,
	}
}

// PostingText fetches a job posting URL and returns its readable text.
func (f *Fetcher) PostingText(ctx context.Context, url string) (string, error) {
	text, err := f.fetchStatic(ctx, url)
	if err == nil && len(text) >= minUsefulLength {
		return text, nil
	}
	if f.useBrowser {
		rendered, berr := f.fetchRendered(ctx, url)
		if berr == nil {
			return rendered, nil
		}
		if err == nil {
			err = berr
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (f *Fetcher) fetchStatic(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch posting: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("posting fetch returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse posting HTML: %w", err)
	}
	return ExtractText(doc), nil
}

// ExtractText pulls readable text out of a posting document, skipping
// navigation and script noise.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, noscript").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, p, li, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(parts, "\n")
}
