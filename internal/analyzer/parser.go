package analyzer

import (
	"regexp"
	"strings"
)

// Replies are parsed with two strategies. The primary one reads the
// output: sentinel line the prompts demand; when a model ignores the
// instruction, the fallback grabs the last querySelector expression in
// the prose. Both take the last match so self-corrections win.
var (
	outputLineRe   = regexp.MustCompile(`output:\s*(.+)`)
	selectorExprRe = regexp.MustCompile(`document\.querySelector\('(.+?)'`)
)

// ExtractSelector pulls the selector expression out of a model reply.
// Returns nil when neither strategy matches.
func ExtractSelector(text string) *string {
	if matches := outputLineRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		out := strings.TrimSpace(matches[len(matches)-1][1])
		if out != "" {
			return &out
		}
	}

	if matches := selectorExprRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		out := matches[len(matches)-1][0] + ")"
		return &out
	}

	return nil
}
