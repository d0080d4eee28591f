package crawler

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is descriptive metadata pulled from a lesson page. It fills in
// source titles the operator left blank.
type PageMeta struct {
	Title       string
	Description string
	Author      string
}

// extractPageMeta reads OpenGraph tags, standard meta tags and JSON-LD
// structured data, preferring the most specific value for each field.
func extractPageMeta(selection *goquery.Selection) PageMeta {
	meta := PageMeta{}

	if og, ok := selection.Find("meta[property='og:title']").Attr("content"); ok {
		meta.Title = strings.TrimSpace(og)
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(selection.Find("title").Text())
	}

	if og, ok := selection.Find("meta[property='og:description']").Attr("content"); ok {
		meta.Description = strings.TrimSpace(og)
	}
	if meta.Description == "" {
		if desc, ok := selection.Find("meta[name='description']").Attr("content"); ok {
			meta.Description = strings.TrimSpace(desc)
		}
	}

	if author, ok := selection.Find("meta[name='author']").Attr("content"); ok {
		meta.Author = strings.TrimSpace(author)
	}

	// JSON-LD wins over meta tags when an article or learning resource
	// block names the page.
	selection.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		if !isLessonType(data) {
			return
		}
		if headline, ok := data["headline"].(string); ok && headline != "" {
			meta.Title = strings.TrimSpace(headline)
		} else if name, ok := data["name"].(string); ok && name != "" {
			meta.Title = strings.TrimSpace(name)
		}
		if desc, ok := data["description"].(string); ok && desc != "" {
			meta.Description = strings.TrimSpace(desc)
		}
		if author, ok := extractAuthorFromJSON(data); ok {
			meta.Author = author
		}
	})

	return meta
}

func isLessonType(data map[string]interface{}) bool {
	atType, ok := data["@type"].(string)
	if !ok {
		return false
	}
	switch atType {
	case "Article", "NewsArticle", "BlogPosting", "LearningResource", "Course", "CreativeWork", "WebPage":
		return true
	}
	return false
}

func extractAuthorFromJSON(data map[string]interface{}) (string, bool) {
	switch author := data["author"].(type) {
	case string:
		return strings.TrimSpace(author), author != ""
	case map[string]interface{}:
		if name, ok := author["name"].(string); ok && name != "" {
			return strings.TrimSpace(name), true
		}
	}
	return "", false
}
