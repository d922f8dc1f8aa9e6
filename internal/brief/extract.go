// Package brief turns brand briefs (pasted text, email HTML or hosted pages) into plain text.
package brief

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/util"
)

var htmlTagRegex = regexp.MustCompile(`(?i)<(html|body|div|p|br|table|span|ul|ol|li|h[1-6])[\s/>]`)

const (
	dropSelector  = "script, style, noscript, head, iframe, svg, template"
	blockSelector = "p, div, li, tr, blockquote, section, article, h1, h2, h3, h4, h5, h6"
)

// LooksLikeHTML reports whether raw is markup rather than plain text.
func LooksLikeHTML(raw string) bool {
	return htmlTagRegex.MatchString(raw)
}

// ExtractText returns the readable text of raw. HTML is parsed and stripped of
// non-content nodes; plain text only has its whitespace normalized.
func ExtractText(raw string) (string, error) {
	if !LooksLikeHTML(raw) {
		return util.CollapseWhitespace(raw), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse brief HTML: %w", err)
	}
	return documentText(doc), nil
}

func documentText(doc *goquery.Document) string {
	doc.Find(dropSelector).Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").PrependHtml("- ")
	doc.Find(blockSelector).AppendHtml("\n")

	body := doc.Find("body")
	if body.Length() == 0 {
		return util.CollapseWhitespace(doc.Text())
	}
	return util.CollapseWhitespace(body.Text())
}

// Prepare normalizes a brief for analysis. An empty result is a validation error.
func Prepare(raw string) (string, error) {
	text, err := ExtractText(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: brief text is empty", models.ErrValidation)
	}
	return text, nil
}

// MaxChars bounds the brief text sent for analysis.
const MaxChars = 5000

// Truncate cuts text to MaxChars characters.
func Truncate(text string) string {
	return util.TruncateRunes(text, MaxChars)
}
