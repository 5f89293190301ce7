// Package codeblock pulls a fenced code block out of free-form model output.
package codeblock

import "strings"

const (
	// OpenTag opens the block the model is asked to produce.
	OpenTag = "```python"
	fence   = "```"
)

// Extract returns the trimmed contents of the first ```python block.
// It reports false when no block is present or the block is never closed.
func Extract(raw string) (string, bool) {
	start := strings.Index(raw, OpenTag)
	if start < 0 {
		return "", false
	}
	body := raw[start+len(OpenTag):]
	end := strings.Index(body, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}
