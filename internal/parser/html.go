package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser renders HTML mail bodies as plain text for chat messages and
// for the text/plain alternative of outgoing mail.
type HTMLParser struct {
	spaces    *regexp.Regexp
	blankRuns *regexp.Regexp
	invisible *regexp.Regexp
	tagLike   *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		spaces:    regexp.MustCompile(`[^\S\n]+`),
		blankRuns: regexp.MustCompile(`\n{3,}`),
		// zero-width and other invisible characters used by mail trackers
		invisible: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}\x{FFF0}-\x{FFF8}]+`),
		tagLike:   regexp.MustCompile(`(?i)<(html|body|div|p|br|table|span|a)[\s/>]`),
	}
}

// IsHTML reports whether body looks like markup rather than plain text.
func (p *HTMLParser) IsHTML(body string) bool {
	return p.tagLike.MatchString(body)
}

// Parse converts HTML to plain text. Paragraphs are separated by blank
// lines, list items get a bullet and links keep their target in brackets
// when it differs from the link text.
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title, noscript").Remove()

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		text := strings.TrimSpace(s.Text())
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		href = strings.TrimPrefix(href, "mailto:")
		switch {
		case text == "":
			s.SetText(href)
		case text != href:
			s.SetText(text + " (" + href + ")")
		}
	})
	doc.Find("img[alt]").Each(func(_ int, s *goquery.Selection) {
		if alt := strings.TrimSpace(s.AttrOr("alt", "")); alt != "" {
			s.ReplaceWithHtml("[" + escapeText(alt) + "]")
		}
	})

	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n• ")
	})
	doc.Find("br, tr").Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml("\n")
	})
	doc.Find("p, div, h1, h2, h3, h4, h5, h6, blockquote, table, ul, ol").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n\n")
		s.AppendHtml("\n\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return p.clean(doc.Text()), nil
}

func (p *HTMLParser) clean(text string) string {
	text = p.invisible.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = p.spaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = p.blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// PlainText returns the plain-text rendering of body. Plain bodies are only
// cleaned.
func (p *HTMLParser) PlainText(body string) string {
	if p.IsHTML(body) {
		if parsed, err := p.Parse(body); err == nil {
			return parsed
		}
		return body
	}
	return p.clean(body)
}

// Preview returns PlainText cut to at most limit runes. Cutting happens at
// a word boundary when one is close, and an ellipsis marks the cut.
func (p *HTMLParser) Preview(body string, limit int) string {
	return Truncate(p.PlainText(body), limit)
}

// Truncate cuts s to at most limit runes, including the trailing ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := runes[:limit-1]
	if i := lastSpace(cut); i > len(cut)*4/5 {
		cut = cut[:i]
	}
	return strings.TrimRight(string(cut), " \n.,;:") + "…"
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' || r[i] == '\n' {
			return i
		}
	}
	return -1
}

func escapeText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
