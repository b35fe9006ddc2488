package web

import (
	"regexp"
	"strings"
)

var (
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`),
		regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`),
		regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`),
	}
	descriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`),
		regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`),
	}
	containerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<main[^>]*>(.*?)</main>`),
		regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`),
		regexp.MustCompile(`(?is)<div[^>]*(?:id|role)=["'](?:content|main)["'][^>]*>(.*?)</div>`),
	}
	bodyPattern       = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	noisePattern      = regexp.MustCompile(`(?is)<(script|style|noscript|iframe|nav|header|footer|aside|svg)\b[^>]*>.*?</(?:script|style|noscript|iframe|nav|header|footer|aside|svg)>`)
	commentPattern    = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockPattern      = regexp.MustCompile(`(?i)</?(?:p|div|h[1-6]|li|br|tr|section)\b[^>]*>`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	inlineSpace       = regexp.MustCompile(`[^\S\n]+`)
	excessNewlines    = regexp.MustCompile(`\n{3,}`)
	minContainerChars = 200
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

// Page is the readable rendering of an HTML document.
type Page struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text"`
}

// ExtractPage reduces an HTML document to its title, description and
// readable text. Main content containers are preferred over the full body
// when they hold enough text.
func ExtractPage(html string) Page {
	html = commentPattern.ReplaceAllString(html, "")
	html = noisePattern.ReplaceAllString(html, "")

	page := Page{
		Title:       firstMatch(titlePatterns, html),
		Description: firstMatch(descriptionPatterns, html),
	}
	for _, re := range containerPatterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if text := cleanText(stripTags(m[1])); len(text) >= minContainerChars {
				page.Text = text
				return page
			}
		}
	}
	if m := bodyPattern.FindStringSubmatch(html); len(m) > 1 {
		page.Text = cleanText(stripTags(m[1]))
	} else {
		page.Text = cleanText(stripTags(html))
	}
	return page
}

// String renders the page as plain text.
func (p Page) String() string {
	var sb strings.Builder
	if p.Title != "" {
		sb.WriteString("Title: " + p.Title + "\n\n")
	}
	if p.Description != "" {
		sb.WriteString("Description: " + p.Description + "\n\n")
	}
	sb.WriteString(p.Text)
	return sb.String()
}

func firstMatch(patterns []*regexp.Regexp, html string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if text := cleanText(stripTags(m[1])); text != "" {
				return text
			}
		}
	}
	return ""
}

func stripTags(html string) string {
	html = blockPattern.ReplaceAllString(html, "\n")
	return tagPattern.ReplaceAllString(html, "")
}

func cleanText(text string) string {
	text = entityReplacer.Replace(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	text = excessNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
