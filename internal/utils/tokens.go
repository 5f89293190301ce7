package utils

// CountTokens approximates a token count at four runes per token.
// Non-empty text always counts as at least one token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(len([]rune(text))/4, 1)
}

// TokenBreakdown estimates tokens for each labeled section.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
