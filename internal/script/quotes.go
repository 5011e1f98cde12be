package script

import "strings"

// isEscapedQuote reports whether the quote at pos is escaped, i.e. preceded
// by an odd-length run of backslashes.
func isEscapedQuote(text string, pos int) bool {
	if pos == 0 {
		return false
	}

	backslashes := 0
	for check := pos - 1; check >= 0 && text[check] == '\\'; check-- {
		backslashes++
	}

	return backslashes%2 == 1
}

// findFirstUnescapedQuote returns the index of the first unescaped double
// quote at or after start, or -1.
func findFirstUnescapedQuote(text string, start int) int {
	for pos := start; pos < len(text); pos++ {
		if text[pos] == '"' && !isEscapedQuote(text, pos) {
			return pos
		}
	}
	return -1
}

// findLastUnescapedQuote returns the index of the last unescaped double
// quote strictly before end (end < 0 means end of string), or -1.
func findLastUnescapedQuote(text string, end int) int {
	if end < 0 {
		end = len(text)
	}
	for pos := end - 1; pos >= 0; pos-- {
		if text[pos] == '"' && !isEscapedQuote(text, pos) {
			return pos
		}
	}
	return -1
}

// dialogueParts splits a line into the tag before the first unescaped quote
// and the text between the first and last unescaped quotes. Returns ok=false
// when the line does not carry a quoted string.
func dialogueParts(line string) (tag, text string, ok bool) {
	last := findLastUnescapedQuote(line, -1)
	if last == -1 {
		return "", "", false
	}

	first := findLastUnescapedQuote(line, last)
	if first == -1 {
		// A line that is nothing but one quoted string still qualifies
		// when it opens with the quote itself.
		if !strings.HasPrefix(strings.TrimSpace(line), `"`) {
			return "", "", false
		}
		first = findFirstUnescapedQuote(line, 0)
		if first >= last {
			return "", "", false
		}
	}

	tag = strings.TrimSpace(line[:first])
	text = line[first+1 : last]
	return tag, text, true
}

// splitLines splits text into lines that keep their terminators, so the
// writer can rejoin them byte-identically.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
