package scrape

import (
	"regexp"
	"strings"
)

var (
	dropBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript|svg|nav|footer)[^>]*>.*?</(script|style|noscript|svg|nav|footer)>`)
	rowEndRe    = regexp.MustCompile(`(?i)</(tr|p|div|li|h[1-6])>|<br\s*/?>`)
	cellEndRe   = regexp.MustCompile(`(?i)</t[dh]>`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLineRe = regexp.MustCompile(`\n\s*\n+`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
	"&#160;", " ",
	"&minus;", "-",
	"&#8722;", "-",
	"&percnt;", "%",
)

// HTMLToText strips markup from a page while keeping table rows and block
// elements on their own lines, so row-oriented patterns still work.
func HTMLToText(html string) string {
	html = dropBlockRe.ReplaceAllString(html, "")
	html = rowEndRe.ReplaceAllString(html, "\n")
	html = cellEndRe.ReplaceAllString(html, " ")
	html = tagRe.ReplaceAllString(html, " ")
	html = entityReplacer.Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")

	lines := strings.Split(html, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	html = strings.Join(lines, "\n")
	html = blankLineRe.ReplaceAllString(html, "\n")
	return strings.TrimSpace(html)
}
