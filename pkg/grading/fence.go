package grading

import "strings"

const (
	openFence  = "```json"
	closeFence = "```"
)

// StripCodeFence removes a leading ```json marker and a trailing ``` marker from model
// output, along with surrounding whitespace. Text without fences is only trimmed, so
// applying it twice is the same as applying it once.
func StripCodeFence(text string) string {
	out := strings.TrimSpace(text)
	out = strings.TrimPrefix(out, openFence)
	out = strings.TrimSuffix(out, closeFence)
	return strings.TrimSpace(out)
}
