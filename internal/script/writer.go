package script

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// renpyEscapeIdioms matches quote sequences that are intentional script
// escapes and must pass through untouched; a bare quote is the only match
// that gets re-escaped.
var renpyEscapeIdioms = regexp.MustCompile(`\\"|""|" "|"`)

func escapeQuotes(text string) string {
	return renpyEscapeIdioms.ReplaceAllStringFunc(text, func(m string) string {
		if m == `"` {
			return `\"`
		}
		return m
	})
}

// ApplyEdits splices each entry's translation between the quote pair on its
// target line and returns the modified line array. Edits are applied in
// descending line order. An entry is skipped when its translation is empty
// or equal to its source, when its line number is out of range, or when no
// valid quote pair can be located on the line.
func ApplyEdits(lines []string, entries []Entry) []string {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].LineNo > sorted[b].LineNo
	})

	for _, entry := range sorted {
		if entry.Translation == "" || entry.Translation == entry.Source {
			continue
		}
		if entry.LineNo < 0 || entry.LineNo >= len(lines) {
			continue
		}

		line := lines[entry.LineNo]

		// Start the quote search past the tag so quotes inside the tag
		// text cannot match.
		searchStart := 0
		if entry.Tag != "" {
			if idx := strings.Index(line, entry.Tag); idx != -1 {
				searchStart = idx + len(entry.Tag)
			}
		}

		first := findFirstUnescapedQuote(line, searchStart)
		last := findLastUnescapedQuote(line, -1)
		if first == -1 || last <= first {
			continue
		}

		lines[entry.LineNo] = line[:first+1] + escapeQuotes(entry.Translation) + line[last:]
	}

	return lines
}

// WriteFile reads sourcePath, applies the entries and writes the result to
// targetPath, creating parent directories as needed. sourcePath may equal
// targetPath for in-place updates.
func WriteFile(targetPath, sourcePath string, entries []Entry) error {
	if sourcePath == "" {
		sourcePath = targetPath
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to read script file: %w", err)
	}

	lines := ApplyEdits(splitLines(string(data)), entries)

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err := os.WriteFile(targetPath, []byte(strings.Join(lines, "")), 0o644); err != nil {
		return fmt.Errorf("failed to write script file: %w", err)
	}
	return nil
}
