package crawler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"ai-tutor-platform/internal/logger"
)

const (
	defaultMaxPages = 10
	minPageWords    = 10
	linksPerPage    = 20
)

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Config describes one fetch of study material from the web. FollowLinks
// turns a single-page fetch into a bounded same-domain crawl, which is how
// a course site with one lesson per page gets ingested in one request.
type Config struct {
	URL         string
	MaxPages    int
	FollowLinks bool
	Timeout     time.Duration

	// Render the start page in a headless browser when static extraction
	// comes back empty. Lesson platforms that hydrate everything
	// client-side need this.
	RenderJS      bool
	RenderTimeout time.Duration
}

// Page is one fetched document with its cleaned text.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Result aggregates a crawl. Title and Meta come from the start page.
type Result struct {
	URL   string
	Title string
	Meta  PageMeta
	Pages []Page
}

// normalizeURL maps equivalent URL spellings onto one canonical form so
// duplicate pages are visited once.
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parsed.Fragment = ""

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Port() == "80" && parsed.Scheme == "http" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	return parsed.String(), nil
}

// Crawl fetches cfg.URL, and when FollowLinks is set walks same-domain
// links breadth-first until MaxPages documents carry enough text. Pages
// below minPageWords words are dropped; a run that ends with zero pages
// falls back to headless rendering when cfg.RenderJS allows it.
func Crawl(cfg Config) (*Result, error) {
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "https"
		cfg.URL = parsedURL.String()
	}
	startURL, err := normalizeURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	hostname := strings.TrimPrefix(strings.ToLower(parsedURL.Hostname()), "www.")
	allowedDomains := []string{hostname, "www." + hostname}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if !cfg.FollowLinks {
		maxPages = 1
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(2),
		colly.AllowedDomains(allowedDomains...),
	)
	c.WithTransport(httpTransport)
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}
	c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       1 * time.Second,
		RandomDelay: 500 * time.Millisecond,
	})

	result := &Result{URL: startURL}
	var (
		mu        sync.Mutex
		pages     []Page
		fetchErr  error
		processed sync.Map
		queued    sync.Map
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			return
		}

		// Go's transport decompresses gzip on its own; brotli it does not.
		var bodyReader io.Reader = bytes.NewReader(r.Body)
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bodyReader)); err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(bodyReader, contentType); err == nil {
				if decoded, readErr := io.ReadAll(utf8Reader); readErr == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if len(pages) >= maxPages {
			return
		}

		pageURL, err := normalizeURL(e.Request.URL.String())
		if err != nil {
			return
		}
		if _, seen := processed.LoadOrStore(pageURL, true); seen {
			return
		}

		doc := e.DOM
		title := strings.TrimSpace(doc.Find("title").Text())
		content := extractMainContent(doc)
		if len(strings.Fields(content)) < minPageWords {
			return
		}

		pages = append(pages, Page{URL: pageURL, Title: title, Content: content})
		if len(pages) == 1 {
			result.Title = title
			result.Meta = extractPageMeta(doc)
		}

		if cfg.FollowLinks && len(pages) < maxPages {
			links := 0
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				if links >= linksPerPage || len(pages) >= maxPages {
					return
				}
				href, ok := s.Attr("href")
				if !ok || href == "" || strings.HasPrefix(href, "#") {
					return
				}
				lower := strings.ToLower(href)
				if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
					return
				}
				absolute := e.Request.AbsoluteURL(href)
				if absolute == "" {
					return
				}
				normalized, err := normalizeURL(absolute)
				if err != nil {
					return
				}
				if _, seen := queued.LoadOrStore(normalized, true); seen {
					return
				}
				if !isContentURL(normalized, hostname) {
					return
				}
				links++
				c.Visit(normalized)
			})
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		requestURL, _ := normalizeURL(r.Request.URL.String())
		if strings.Contains(err.Error(), "already visited") {
			return
		}
		if requestURL != startURL {
			logger.Warn("Crawl page failed", "url", requestURL, "status", r.StatusCode, "error", err)
			return
		}
		switch {
		case r.StatusCode == 403:
			fetchErr = fmt.Errorf("access forbidden (403): the site blocked the crawler")
		case r.StatusCode == 429:
			fetchErr = fmt.Errorf("rate limited (429): retry the ingestion later")
		case r.StatusCode >= 500:
			fetchErr = fmt.Errorf("server error (%d) fetching %s", r.StatusCode, requestURL)
		default:
			fetchErr = fmt.Errorf("fetching %s: %w", requestURL, err)
		}
	})

	queued.Store(startURL, true)
	if err := c.Visit(startURL); err != nil && !strings.Contains(err.Error(), "already visited") {
		return nil, fmt.Errorf("starting crawl: %w", err)
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()

	if len(pages) == 0 && cfg.RenderJS {
		if page, meta, err := renderStartPage(startURL, cfg.RenderTimeout); err == nil {
			pages = append(pages, page)
			result.Title = page.Title
			result.Meta = meta
			fetchErr = nil
		} else {
			logger.Warn("Headless render fallback failed", "url", startURL, "error", err)
		}
	}

	if len(pages) == 0 {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("no readable text at %s", startURL)
	}

	result.Pages = pages
	return result, nil
}

// renderStartPage loads the URL in headless Chrome and extracts content
// from the hydrated DOM.
func renderStartPage(urlStr string, timeout time.Duration) (Page, PageMeta, error) {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	html, err := renderPageHTML(urlStr, timeout)
	if err != nil {
		return Page{}, PageMeta{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, PageMeta{}, err
	}
	content := extractMainContent(doc.Selection)
	if len(strings.Fields(content)) < minPageWords {
		return Page{}, PageMeta{}, fmt.Errorf("rendered page has no readable text")
	}
	title := strings.TrimSpace(doc.Find("title").Text())
	return Page{URL: urlStr, Title: title, Content: content}, extractPageMeta(doc.Selection), nil
}

// extractMainContent strips chrome elements and walks content selectors
// from most to least specific, falling back to the whole body.
func extractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads, .skip-link").Remove()

	contentSelectors := []string{
		"main",
		"article",
		"[role='main']",
		".lesson-content",
		".main-content",
		".entry-content",
		".post-content",
		".content",
		"#content",
		"body",
	}

	var content strings.Builder
	found := false
	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				found = true
			}
		})
		if found {
			break
		}
	}
	if !found {
		content.WriteString(doc.Find("body").Text())
	}

	lines := strings.Split(strings.TrimSpace(content.String()), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// isContentURL filters crawl candidates down to same-domain pages that can
// plausibly hold lesson text.
func isContentURL(urlStr, domain string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	hostname := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if hostname != domain && !strings.HasSuffix(hostname, "."+domain) {
		return false
	}

	excluded := []string{
		"/wp-json/", "/wp-admin/", "/wp-includes/",
		"/api/", "/ajax/", "/feed/", "/rss/", "/atom/",
		"/search?", "/?s=",
		".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js", ".xml", ".zip",
	}
	// Match path and query as one string so patterns like "/search?" work.
	target := strings.ToLower(parsed.Path)
	if parsed.RawQuery != "" {
		target += "?" + strings.ToLower(parsed.RawQuery)
	}
	for _, pattern := range excluded {
		if strings.Contains(target, pattern) {
			return false
		}
	}
	return true
}
