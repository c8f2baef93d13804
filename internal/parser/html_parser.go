// Package parser extracts the title, visible text, links and robots
// directives from HTML documents.
package parser

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser extracts metadata, text and links from HTML
type HTMLParser struct {
	baseURL        *url.URL
	allowedSchemes []string
}

// Document contains the parsed HTML data
type Document struct {
	Title        string
	MetaDesc     string
	MetaRobots   string
	CanonicalURL string
	ContentHash  string
	BodyText     string
	Links        []Link

	// NoIndex and NoFollow mirror the meta robots directives.
	NoIndex  bool
	NoFollow bool
}

// Link represents a parsed link
type Link struct {
	URL          string
	AnchorText   string
	RelAttribute string
	IsExternal   bool
}

// NoFollow reports whether the link carries rel="nofollow".
func (l Link) NoFollow() bool {
	for _, rel := range strings.Fields(strings.ToLower(l.RelAttribute)) {
		if rel == "nofollow" {
			return true
		}
	}
	return false
}

// skipText lists elements whose text is never part of the visible body.
var skipText = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"iframe":   true,
	"head":     true,
}

// blockElements separate words when their text is concatenated.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
	"nav": true, "tr": true, "blockquote": true, "pre": true,
}

// NewHTMLParser creates a new HTML parser with default allowed schemes
func NewHTMLParser(baseURL string) (*HTMLParser, error) {
	return NewHTMLParserWithSchemes(baseURL, []string{"https://", "http://"})
}

// NewHTMLParserWithSchemes creates a new HTML parser with custom allowed schemes
func NewHTMLParserWithSchemes(baseURL string, allowedSchemes []string) (*HTMLParser, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !parsedURL.IsAbs() {
		return nil, fmt.Errorf("invalid base URL: %q is not absolute", baseURL)
	}

	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"https://", "http://"}
	}

	return &HTMLParser{
		baseURL:        parsedURL,
		allowedSchemes: allowedSchemes,
	}, nil
}

// Parse parses HTML content and extracts metadata, body text and links.
// The content hash covers the raw bytes and is set even when parsing fails.
func (p *HTMLParser) Parse(htmlContent []byte) (*Document, error) {
	hash := sha256.Sum256(htmlContent)
	result := &Document{
		ContentHash: fmt.Sprintf("%x", hash),
		Links:       []Link{},
	}

	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return result, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var text strings.Builder
	p.traverse(doc, result, &text)
	result.BodyText = strings.Join(strings.Fields(text.String()), " ")

	if result.NoFollow {
		result.Links = []Link{}
	}
	return result, nil
}

// traverse recursively walks the HTML tree
func (p *HTMLParser) traverse(n *html.Node, result *Document, text *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		text.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "title":
			if result.Title == "" {
				result.Title = strings.Join(strings.Fields(p.extractText(n)), " ")
			}
		case "base":
			p.parseBase(n)
		case "meta":
			p.parseMeta(n, result)
		case "link":
			p.parseLink(n, result)
		case "a":
			p.parseAnchor(n, result)
		}

		if skipText[n.Data] {
			// Links and metadata inside head are still collected.
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				p.traverse(c, result, &strings.Builder{})
			}
			return
		}
		if blockElements[n.Data] {
			text.WriteByte(' ')
			defer text.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.traverse(c, result, text)
	}
}

// parseBase honours <base href> for relative link resolution.
func (p *HTMLParser) parseBase(n *html.Node) {
	href := attr(n, "href")
	if href == "" {
		return
	}
	u, err := url.Parse(href)
	if err != nil {
		return
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme == "http" || resolved.Scheme == "https" {
		p.baseURL = resolved
	}
}

// parseMeta extracts metadata from meta tags
func (p *HTMLParser) parseMeta(n *html.Node, result *Document) {
	name := strings.ToLower(attr(n, "name"))
	content := attr(n, "content")

	switch name {
	case "description":
		result.MetaDesc = content
	case "robots":
		result.MetaRobots = content
		for _, directive := range strings.Split(strings.ToLower(content), ",") {
			switch strings.TrimSpace(directive) {
			case "noindex":
				result.NoIndex = true
			case "nofollow":
				result.NoFollow = true
			case "none":
				result.NoIndex = true
				result.NoFollow = true
			}
		}
	}
}

// parseLink extracts canonical URL from link tags
func (p *HTMLParser) parseLink(n *html.Node, result *Document) {
	rel := strings.ToLower(attr(n, "rel"))
	href := attr(n, "href")

	if rel == "canonical" && href != "" {
		if absURL, err := p.resolveURL(href); err == nil && p.isAllowedScheme(absURL) {
			result.CanonicalURL = absURL
		}
	}
}

// parseAnchor extracts links from anchor tags
func (p *HTMLParser) parseAnchor(n *html.Node, result *Document) {
	href := strings.TrimSpace(attr(n, "href"))
	rel := attr(n, "rel")

	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return
	}

	// Early scheme validation before URL resolution
	if !p.isAllowedScheme(href) {
		return
	}

	absURL, err := p.resolveURL(href)
	if err != nil {
		return
	}
	if !p.isAllowedScheme(absURL) {
		return
	}

	parsedURL, err := url.Parse(absURL)
	if err != nil {
		return
	}

	result.Links = append(result.Links, Link{
		URL:          absURL,
		AnchorText:   p.extractText(n),
		RelAttribute: rel,
		IsExternal:   !strings.EqualFold(parsedURL.Hostname(), p.baseURL.Hostname()),
	})
}

// resolveURL converts relative URLs to absolute URLs
func (p *HTMLParser) resolveURL(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return p.baseURL.ResolveReference(u).String(), nil
}

// extractText recursively extracts text content from a node
func (p *HTMLParser) extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}

	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := p.extractText(c); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// isAllowedScheme checks if the URL has an allowed scheme
func (p *HTMLParser) isAllowedScheme(href string) bool {
	lower := strings.ToLower(href)
	if strings.Contains(lower, "://") {
		for _, scheme := range p.allowedSchemes {
			if strings.HasPrefix(lower, scheme) {
				return true
			}
		}
		return false
	}

	// tel:, mailto: and friends have a scheme but no authority
	if i := strings.Index(lower, ":"); i >= 0 && !strings.ContainsAny(lower[:i], "/?#") {
		return false
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
