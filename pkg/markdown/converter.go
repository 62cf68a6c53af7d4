package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	preCodeRe   = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	anyTagRe    = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?>`)
	tagNameRe   = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Telegram supports only a small HTML subset in message text
var supportedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "a": true, "br": true,
}

// ToTelegramHTML converts markdown to Telegram-compatible HTML
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	// Unwrap paragraphs, keep a newline between them
	html = paragraphRe.ReplaceAllString(html, "$1\n")

	// Map semantic tags to the forms Telegram renders
	replacer := strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<ul>", "", "</ul>", "",
		"<ol>", "", "</ol>", "",
		"<li>", "• ", "</li>", "\n",
	)
	html = replacer.Replace(html)

	// Fenced code blocks lose their language class
	html = preCodeRe.ReplaceAllString(html, "<pre>$1</pre>")

	// Strip everything Telegram would reject
	html = anyTagRe.ReplaceAllStringFunc(html, func(match string) string {
		m := tagNameRe.FindStringSubmatch(match)
		if len(m) > 1 && supportedTags[strings.ToLower(m[1])] {
			return match
		}
		return ""
	})

	html = newlinesRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
