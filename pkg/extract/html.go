// Package extract turns raw fetched bytes into normalized plain text
// plus extraction metadata, for both HTML pages and PDF documents.
// Grounded on original_source/fetchers/html_fetcher.py's
// extract_text_from_html/extract_metadata_from_html, reimplemented
// with goquery instead of BeautifulSoup.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var collapseBlankLines = regexp.MustCompile(`\n{3,}`)

// stripSelectors removes elements that never carry page content.
var stripSelectors = []string{"script", "style", "nav", "header", "footer", "aside"}

// contentContainerKeywords are the class-name substrings that mark a
// div as a content container, in priority order.
var contentContainerKeywords = []string{"content", "main", "article", "post", "entry", "body"}

// contentContainerSelectors is tried in order; the first element found
// is treated as the page's content root.
var contentContainerSelectors = append([]string{"main", "article"}, divClassSelectors()...)

func divClassSelectors() []string {
	sel := make([]string, len(contentContainerKeywords))
	for i, kw := range contentContainerKeywords {
		sel[i] = "div[class*=" + kw + "]"
	}
	return sel
}

// HTML extracts readable text from an HTML document, applying the
// same container-priority and stripping rules as the original
// extractor: main, then article, then a content-like div, then body,
// then the whole document.
func HTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	for _, sel := range stripSelectors {
		doc.Find(sel).Remove()
	}

	var container *goquery.Selection
	for _, sel := range contentContainerSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			container = s
			break
		}
	}
	if container == nil {
		if body := doc.Find("body").First(); body.Length() > 0 {
			container = body
		} else {
			container = doc.Selection
		}
	}

	text := blockText(container)
	text = collapseBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

// blockText walks direct text nodes the way get_text(separator='\n')
// does: every element's text contributes on its own line.
func blockText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

// Metadata captures the page attributes the original extractor reads
// from response headers and meta tags.
type Metadata struct {
	PageTitle     string
	LastModified  string
	Description   string
	FinalURL      string
	Redirected    bool
	StatusCode    int
	ContentLength int64
}

// HTMLMetadata reads title, last-modified, and description metadata
// out of the parsed document. lastModifiedHeader is the HTTP
// Last-Modified response header, preferred over meta tags per the
// original's precedence.
func HTMLMetadata(htmlContent string, lastModifiedHeader string) (Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		PageTitle:    strings.TrimSpace(doc.Find("title").First().Text()),
		LastModified: lastModifiedHeader,
	}

	if md.LastModified == "" {
		for _, name := range []string{"last-modified", "article:modified_time", "date"} {
			if v, ok := doc.Find(`meta[name="` + name + `"]`).Attr("content"); ok && v != "" {
				md.LastModified = v
				break
			}
			if v, ok := doc.Find(`meta[property="` + name + `"]`).Attr("content"); ok && v != "" {
				md.LastModified = v
				break
			}
		}
	}

	if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		md.Description = v
	}

	return md, nil
}
