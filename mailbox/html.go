package mailbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockSelector lists the elements whose text becomes its own line.
const blockSelector = "h1,h2,h3,h4,h5,h6,p,li,pre,td"

// PlainText renders an HTML mail body as plain text, one line per block
// element. Scripts and styles are dropped. Markup without block elements is
// returned as its text content.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		lines = appendLines(lines, s.Text())
	})
	if len(lines) == 0 {
		lines = appendLines(lines, doc.Text())
	}
	return strings.Join(lines, "\n"), nil
}

func appendLines(lines []string, text string) []string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
