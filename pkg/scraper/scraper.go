package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/logger"
	"github.com/xhad/docqa/pkg/processor"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	MaxDepth           int
	RateLimit          float64 // requests per second
	IgnorePatterns     []string
	AllowedExtensions  []string
	Timeout            time.Duration
	UserAgent          string
	MinParagraphLength int
	OnProgress         func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *logrus.Entry
}

// Content roots tried in order; the first match wins.
var contentSelectors = []string{
	"#mw-content-text .mw-parser-output",
	"main",
	"article",
	".content",
	"#content",
	"body",
}

const noiseSelector = "table, sup, .reference, .toc, .navbox, script, style, nav, footer"

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0"
	}
	if config.MinParagraphLength < 0 {
		config.MinParagraphLength = 0
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     logger.New("scraper"),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{MinParagraphLength: 200})
}

// crawl holds per-call state so one Scraper can serve concurrent requests.
type crawl struct {
	baseHost string
	visited  map[string]bool
	pages    []models.Page
}

// ValidateURL accepts only absolute http(s) URLs.
func ValidateURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: Invalid URL", models.ErrInvalidInput)
	}
	return parsed, nil
}

// Scrape fetches rawURL and, up to MaxDepth, same-host pages it links to.
// A failure on the starting page is returned; failures on linked pages are
// logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) ([]models.Page, error) {
	start, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	c := &crawl{
		baseHost: start.Host,
		visited:  make(map[string]bool),
	}
	if err := s.scrapeRecursive(ctx, c, start.String(), 0); err != nil {
		return nil, err
	}
	return c.pages, nil
}

func (s *Scraper) shouldProcessURL(baseHost, urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != baseHost {
		return false
	}

	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, *http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", urlStr, err)
	}
	return doc, resp, nil
}

// ExtractParagraphs returns the cleaned text of every paragraph in the main
// content area that is longer than MinParagraphLength runes.
func (s *Scraper) ExtractParagraphs(doc *goquery.Document) []string {
	var root *goquery.Selection
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}
	if root == nil {
		return nil
	}

	root.Find(noiseSelector).Remove()

	var paragraphs []string
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := processor.CleanText(p.Text())
		if utf8.RuneCountInString(text) > s.config.MinParagraphLength {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs
}

func (s *Scraper) scrapeRecursive(ctx context.Context, c *crawl, urlStr string, depth int) error {
	if depth > s.config.MaxDepth || c.visited[urlStr] {
		return nil
	}
	if depth > 0 && !s.shouldProcessURL(c.baseHost, urlStr) {
		return nil
	}

	c.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	doc, resp, err := s.fetch(ctx, urlStr)
	if err != nil {
		return err
	}

	// Links are collected before noise removal strips nav blocks.
	var links []string
	if depth < s.config.MaxDepth {
		base := resp.Request.URL
		doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
			href, _ := selection.Attr("href")
			ref, err := url.Parse(href)
			if err != nil {
				s.log.WithError(err).WithField("href", href).Debug("Skipping unparsable link")
				return
			}
			resolved := base.ResolveReference(ref)
			resolved.Fragment = ""
			links = append(links, resolved.String())
		})
	}

	c.pages = append(c.pages, models.Page{
		URL:        urlStr,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		Paragraphs: s.ExtractParagraphs(doc),
		Metadata: map[string]interface{}{
			"depth":        depth,
			"time":         time.Now(),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	})

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.scrapeRecursive(ctx, c, link, depth+1); err != nil {
			s.log.WithError(err).WithField("url", link).Warn("Error scraping linked page")
		}
	}

	return nil
}
