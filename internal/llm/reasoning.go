package llm

import "regexp"

// Reasoning models interleave chain-of-thought inside <think> spans.
// Callers only ever want the answer, so the spans are removed before the
// text leaves the gateway. An unterminated span swallows the rest of the
// reply.
var (
	thinkSpanRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)
	thinkTailRe = regexp.MustCompile(`(?s)<think>.*$`)
)

// StripThink removes <think> reasoning spans from model output.
func StripThink(text string) string {
	text = thinkSpanRe.ReplaceAllString(text, "")
	return thinkTailRe.ReplaceAllString(text, "")
}
