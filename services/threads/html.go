package threads

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mknmagx/crmstack/internal/utils"
)

const previewMaxLength = 500

// HTMLToPlainText strips markup from an HTML body so a text preview can be
// stored next to the raw content.
func HTMLToPlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Each(func(i int, el *goquery.Selection) {
		el.Remove()
	})

	text := doc.Find("body").Text()

	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n\n", "\n")

	return text, nil
}

// BodyPreview derives the stored preview from whichever body the provider
// returned, favoring its own bodyPreview when present.
func BodyPreview(providerPreview, bodyHTML, bodyText string) string {
	preview := strings.TrimSpace(providerPreview)
	if preview == "" && bodyHTML != "" {
		if text, err := HTMLToPlainText(bodyHTML); err == nil {
			preview = text
		}
	}
	if preview == "" {
		preview = strings.TrimSpace(bodyText)
	}
	return utils.TruncateOnRuneBoundary(preview, previewMaxLength)
}
