// Package simplify strips a storefront page down to the markup worth
// showing a language model. It deliberately works at regex level rather
// than parsing: malformed input must still produce deterministic output,
// and everything that survives is preserved byte for byte.
package simplify

import (
	"regexp"
	"strings"
)

var (
	bodyRe = regexp.MustCompile(`(?is)<body[^>]*>(.*)</body>`)

	spanRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`),
	}

	// Leftovers after span removal: an opening tag whose close never
	// arrives (dropped to end of input) and stray closing tags.
	danglingRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b.*$`),
		regexp.MustCompile(`(?is)<style\b.*$`),
		regexp.MustCompile(`(?is)<svg\b.*$`),
	}
	strayCloseRe = regexp.MustCompile(`(?i)</(?:script|style|svg)\s*>`)
)

// Simplify reduces html to its body content with every <script>, <style>
// and <svg> span removed. Idempotent: Simplify(Simplify(h)) == Simplify(h).
func Simplify(html string) string {
	out := extractBody(html)

	// Nested occurrences (an <svg> inside an <svg>) leave fragments after
	// one non-greedy pass, so replace until the text stops changing.
	for {
		next := out
		for _, re := range spanRes {
			next = re.ReplaceAllString(next, "")
		}
		if next == out {
			break
		}
		out = next
	}

	for _, re := range danglingRes {
		out = re.ReplaceAllString(out, "")
	}
	return strayCloseRe.ReplaceAllString(out, "")
}

// extractBody returns the content between the first <body …> and its
// matching </body>. Documents without a body pass through whole.
func extractBody(html string) string {
	m := bodyRe.FindStringSubmatchIndex(html)
	if m == nil {
		return html
	}
	return html[m[2]:m[3]]
}

// HasMarkup reports whether any of the stripped tag families remain.
// Used by tests and by callers that want to assert the contract.
func HasMarkup(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<script") ||
		strings.Contains(lower, "<style") ||
		strings.Contains(lower, "<svg")
}
