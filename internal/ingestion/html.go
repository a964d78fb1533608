package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var htmlTag = regexp.MustCompile(`(?i)<(html|body|div|p|ul|ol|li|br|h[1-6]|span|section|article|strong|em|b|i|table)\b[^>]*>`)

// noiseSelector lists elements that never carry posting content
const noiseSelector = "nav, footer, header, script, style, noscript, form, iframe, .ad, .advertisement, .sidebar, .cookie-banner, .popup"

// LooksLikeHTML reports whether content contains common markup tags
func LooksLikeHTML(content string) bool {
	return htmlTag.MatchString(content)
}

// JobPostingSelectors returns selectors optimized for job board markup.
func JobPostingSelectors() []string {
	return []string{
		".job-description",
		".job-content",
		"#job-description",
		"#job-content",
		".posting-content",
		".job-details",
		"[data-testid='job-description']",
		"main",
		"article",
	}
}

// HTMLToText converts job posting markup to text, keeping headings,
// paragraphs and list items on their own lines.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find(noiseSelector).Remove()

	var content *goquery.Selection
	for _, selector := range JobPostingSelectors() {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	content.Find("br").ReplaceWithHtml("\n")
	content.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n- ")
		s.AppendHtml("\n")
	})
	content.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n\n" + strings.Repeat("#", headingLevel(goquery.NodeName(s))) + " ")
		s.AppendHtml("\n\n")
	})
	content.Find("p, div, section, tr, ul, ol").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
		s.AppendHtml("\n")
	})

	return content.Text(), nil
}

func headingLevel(name string) int {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 2
}
