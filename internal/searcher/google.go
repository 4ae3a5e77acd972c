package searcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/webclient"
)

// GoogleClient runs dorks against Google web search and scrapes the organic
// results. A pooled proxy, when supplied, carries the request.
type GoogleClient struct {
	cfg    Config
	wc     webclient.WebClient
	logger logging.Logger
}

// NewGoogleClient builds the Google search client on top of a webclient
// backend.
func NewGoogleClient(cfg Config, wc webclient.WebClient, logger logging.Logger) *GoogleClient {
	return &GoogleClient{
		cfg:    cfg,
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "searcher.google"}),
	}
}

func (g *GoogleClient) Platform() string { return catalog.PlatformGoogle }

// Search fetches one results page for the resolved query.
func (g *GoogleClient) Search(ctx context.Context, item catalog.WorkItem, res *pool.Resource) ([]Finding, error) {
	if g.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("q", item.Query)
	if g.cfg.ResultsPerQuery > 0 {
		q.Set("num", fmt.Sprintf("%d", g.cfg.ResultsPerQuery))
	}
	searchURL := g.cfg.GoogleSearchURL + "?" + q.Encode()

	headers := http.Header{}
	if ua := g.cfg.userAgent(); ua != "" {
		headers.Set("User-Agent", ua)
	}
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")

	req := &webclient.Request{Method: http.MethodGet, URL: searchURL, Headers: headers}
	if res != nil && res.Kind == pool.KindProxy {
		req.ProxyURL = res.URL()
	}

	g.logger.Info("executing google dork", logging.Field{Key: "query", Value: item.Query})

	resp, err := g.wc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google search: unexpected status %d", resp.StatusCode)
	}

	findings, err := parseGoogleResults(item, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}

	g.logger.Info("google dork finished",
		logging.Field{Key: "query", Value: item.Query},
		logging.Field{Key: "results", Value: len(findings)})
	return findings, nil
}

// parseGoogleResults extracts organic results from a results page. Each
// result block carries an outbound anchor and, usually, a snippet div.
func parseGoogleResults(item catalog.WorkItem, body []byte) ([]Finding, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var findings []Finding
	seen := map[string]bool{}

	doc.Find("div.g").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		href = cleanGoogleHref(href)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true

		snippet := strings.TrimSpace(sel.Find("div.VwiC3b").First().Text())
		if snippet == "" {
			snippet = strings.TrimSpace(sel.Find("span.st").First().Text())
		}

		findings = append(findings, Finding{
			Dork:     item.Query,
			Platform: item.Platform,
			Category: item.Category,
			URL:      href,
			Snippet:  snippet,
		})
	})

	// Older/stripped result markup: redirect-style anchors outside div.g.
	if len(findings) == 0 {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			if !strings.HasPrefix(href, "/url?") {
				return
			}
			href = cleanGoogleHref(href)
			if href == "" || seen[href] {
				return
			}
			seen[href] = true
			findings = append(findings, Finding{
				Dork:     item.Query,
				Platform: item.Platform,
				Category: item.Category,
				URL:      href,
			})
		})
	}

	return findings, nil
}

// cleanGoogleHref unwraps "/url?q=<target>&..." redirect links and filters
// everything that is not an absolute external URL.
func cleanGoogleHref(href string) string {
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		href = u.Query().Get("q")
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	if strings.Contains(href, "google.com/") {
		return ""
	}
	return href
}
