package llm

import "strings"

// CleanJSONBlock strips markdown fences and any prose around the first JSON value
// in a model reply. Text without a balanced object or array is returned trimmed.
func CleanJSONBlock(text string) string {
	text = stripFence(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	if extracted := extractBalanced(text[start:], text[start], closer); extracted != "" {
		return extracted
	}
	return text
}

// stripFence removes a leading ``` or ```lang line and the last closing ```
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if first, rest, ok := strings.Cut(text, "\n"); ok && isLanguageTag(first) {
		text = rest
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func isLanguageTag(line string) bool {
	return len(line) < 20 && !strings.ContainsAny(line, " {[")
}

// extractBalanced returns the prefix of s that closes the bracket s starts with.
// Brackets inside JSON strings are ignored.
func extractBalanced(s string, open, close byte) string {
	if s == "" || s[0] != open {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
