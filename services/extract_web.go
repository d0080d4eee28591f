package services

import (
	"time"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/crawler"
)

// WebExtractor fetches lesson pages through the crawler with module-wide
// limits applied.
type WebExtractor struct {
	maxPages int
	timeout  time.Duration
	renderJS bool
}

func NewWebExtractor(cfg *config.Config) *WebExtractor {
	maxPages := 10
	timeout := 60 * time.Second
	renderJS := false
	if cfg != nil {
		if cfg.CrawlMaxPages > 0 {
			maxPages = cfg.CrawlMaxPages
		}
		if cfg.CrawlTimeout > 0 {
			timeout = time.Duration(cfg.CrawlTimeout) * time.Second
		}
		renderJS = cfg.CrawlRenderJS
	}
	return &WebExtractor{maxPages: maxPages, timeout: timeout, renderJS: renderJS}
}

// Fetch grabs the page at url; crawl extends it to a bounded same-domain
// walk for course sites that split lessons across pages.
func (e *WebExtractor) Fetch(url string, crawl bool) (*crawler.Result, error) {
	return crawler.Crawl(crawler.Config{
		URL:         url,
		MaxPages:    e.maxPages,
		FollowLinks: crawl,
		Timeout:     e.timeout,
		RenderJS:    e.renderJS,
	})
}
