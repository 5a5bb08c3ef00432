package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespaceRegex = regexp.MustCompile(`[^\S\n]+`)
	newlineRegex    = regexp.MustCompile(`\n{3,}`)
	// zero-width and other invisible characters common in marketing mail
	invisibleRegex = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{2060}-\x{2064}]+`)
)

// HTMLToText converts an HTML body to plain text with block elements on
// their own lines. Input that is not HTML comes back whitespace-normalized.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalize(html)
	}

	// Remove script and style elements
	doc.Find("script, style, head, meta, link").Remove()

	// Paragraph-level blocks are separated by a blank line, line-level ones by a newline
	doc.Find("p, div, h1, h2, h3, h4, h5, h6, blockquote, table, ul, ol").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n\n")
	})
	doc.Find("br, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return normalize(doc.Text())
}

func normalize(text string) string {
	text = invisibleRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	// runs of blank lines shrink to one
	text = newlineRegex.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(text)
}

// Truncate returns at most max runes of s without splitting a UTF-8 sequence
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// CategoryLabel derives the mailbox category shown to agents from a tag:
// "finance-payment" becomes "Finance Payment".
func CategoryLabel(tag string) string {
	words := strings.Fields(strings.ReplaceAll(tag, "-", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
