package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/textlib/internal/annotate"
	"github.com/TobiSchelling/textlib/internal/ingest"
)

const (
	maxPerFeed    = 20
	maxPageSize   = 10 * 1024 * 1024
	minPageText   = 100
	blockSelector = "p, li, blockquote, pre, h1, h2, h3, h4, h5, h6"
)

// Feed is a single feed to import.
type Feed struct {
	URL  string
	Name string
}

// Ingester stores one article made of display rows.
type Ingester interface {
	Run(ctx context.Context, rows []annotate.RawRow, meta ingest.Meta) *ingest.Result
}

// Result holds the results of an import run.
type Result struct {
	Feeds    int
	Items    int
	Imported int
	Failed   int
	Sources  map[string]int
}

// Options configures an Importer.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // page fetch rate, 0 means unlimited
	UserAgent         string
}

// Importer turns feed items into articles whose paragraphs are display rows.
type Importer struct {
	runner    Ingester
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewImporter creates a new Importer.
func NewImporter(runner Ingester, opts Options) *Importer {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "textlib/1.0 (feed importer)"
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Importer{
		runner: runner,
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: opts.UserAgent,
	}
}

// Import parses every feed and ingests its items. Failing feeds and items
// are logged and skipped.
func (im *Importer) Import(ctx context.Context, feeds []Feed) *Result {
	r := &Result{Sources: make(map[string]int)}

	parser := gofeed.NewParser()
	parser.Client = im.client
	parser.UserAgent = im.userAgent

	for _, fc := range feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		parsed, err := parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		r.Feeds++

		failedDomains := make(map[string]struct{})
		for i, item := range parsed.Items {
			if i >= maxPerFeed || ctx.Err() != nil {
				break
			}
			r.Items++
			if err := im.importItem(ctx, item, name, failedDomains); err != nil {
				log.Printf("Skipping %q: %v", item.Title, err)
				r.Failed++
				continue
			}
			r.Imported++
			r.Sources[name]++
		}
		log.Printf("Imported %d items from %s", r.Sources[name], name)
	}

	return r
}

func (im *Importer) importItem(ctx context.Context, item *gofeed.Item, source string, failedDomains map[string]struct{}) error {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return fmt.Errorf("item has no title")
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}

	var paragraphs []string
	if link != "" {
		domain := hostOf(link)
		if _, failed := failedDomains[domain]; !failed {
			html, err := im.fetchArticleHTML(ctx, link)
			if err != nil {
				log.Printf("Could not fetch %s: %v", link, err)
				if domain != "" {
					failedDomains[domain] = struct{}{}
				}
			} else {
				paragraphs = Paragraphs(html)
			}
		}
	}
	if len(paragraphs) == 0 {
		fallback := item.Content
		if fallback == "" {
			fallback = item.Description
		}
		paragraphs = Paragraphs(fallback)
	}
	if len(paragraphs) == 0 {
		return fmt.Errorf("no text content")
	}

	rows := make([]annotate.RawRow, len(paragraphs))
	for i, p := range paragraphs {
		rows[i] = annotate.RawRow{DisplayRow: i + 1, Line: p}
	}

	res := im.runner.Run(ctx, rows, itemMeta(item, title, source, link))
	return res.Err()
}

func itemMeta(item *gofeed.Item, title, source, link string) ingest.Meta {
	meta := ingest.Meta{
		Title:  title,
		Author: source,
		Tags:   item.Categories,
	}
	if len(item.Authors) > 0 && item.Authors[0].Name != "" {
		meta.Author = item.Authors[0].Name
	}
	if item.PublishedParsed != nil {
		meta.Date = item.PublishedParsed.Format(annotate.DateLayout)
	} else if item.UpdatedParsed != nil {
		meta.Date = item.UpdatedParsed.Format(annotate.DateLayout)
	}
	if link != "" {
		meta.Description = "Imported from " + link
	}
	return meta
}

// fetchArticleHTML downloads a page and returns the HTML of its main
// content as extracted by readability.
func (im *Importer) fetchArticleHTML(ctx context.Context, pageURL string) (string, error) {
	if err := im.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", im.userAgent)

	resp, err := im.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(article.TextContent)) < minPageText {
		return "", fmt.Errorf("no extractable content")
	}
	return article.Content, nil
}

// Paragraphs splits HTML into the whitespace-normalized text of its
// innermost block elements. Markup without blocks is split on line breaks.
func Paragraphs(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			out = append(out, text)
		}
	})
	if len(out) > 0 {
		return out
	}

	for _, line := range strings.Split(doc.Text(), "\n") {
		if text := strings.Join(strings.Fields(line), " "); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
