package script

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// scanState is the parser's current activity. The forward searches for a
// matching "new" line or dialogue line are explicit states so that every
// termination condition is visible in one switch.
type scanState int

const (
	// stateScanning classifies the line at the read position.
	stateScanning scanState = iota
	// stateSeekNew has seen an "old" line and searches for its "new" line.
	stateSeekNew
	// stateSeekDialogue has seen a commented original line and searches
	// for the live dialogue line carrying the same tag.
	stateSeekDialogue
)

// Parse scans a script file's full text and returns all recognized entries
// in ascending line order. Constructs without a matching terminator line are
// dropped, never reported as errors.
func Parse(text string) []Entry {
	return ParseLines(splitLines(text))
}

// ParseFile reads and parses the file at path. A UTF-8 BOM is tolerated.
func ParseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return Parse(string(data)), nil
}

// ParseLines parses a line array whose elements keep their terminators, as
// produced by splitLines. Entry.LineNo indexes into this array.
func ParseLines(lines []string) []Entry {
	var entries []Entry

	state := stateScanning
	var (
		pendingSource string
		pendingTag    string
		search        int
	)

	i := 0
	for {
		switch state {
		case stateScanning:
			if i >= len(lines) {
				return entries
			}
			stripped := strings.TrimSpace(lines[i])

			if strings.HasPrefix(stripped, "old ") {
				if _, src, ok := dialogueParts(stripped); ok {
					pendingSource = src
					search = i + 1
					state = stateSeekNew
					continue
				}
				i++
				continue
			}

			if strings.HasPrefix(stripped, "#") {
				potential := commentRemainder(lines[i])
				tag, src, ok := dialogueParts(potential)
				if ok && !isMetaComment(potential) {
					if tag == voiceTag {
						i++
						continue
					}
					pendingSource = src
					pendingTag = tag
					search = i + 1
					state = stateSeekDialogue
					continue
				}
				i++
				continue
			}

			i++

		case stateSeekNew:
			if search >= len(lines) {
				state = stateScanning
				i++
				continue
			}
			next := strings.TrimSpace(lines[search])
			switch {
			case strings.HasPrefix(next, "new "):
				if _, text, ok := dialogueParts(next); ok {
					entries = append(entries, Entry{
						Source:      pendingSource,
						Translation: text,
						LineNo:      search,
						Kind:        KindOldNew,
					})
					i = search + 1
					state = stateScanning
					continue
				}
				search++
			case strings.HasPrefix(next, "old "), strings.HasPrefix(next, "#"):
				// A second block or a comment bounds the search; the
				// dangling old line is dropped.
				state = stateScanning
				i++
			default:
				search++
			}

		case stateSeekDialogue:
			if search >= len(lines) {
				state = stateScanning
				i++
				continue
			}
			stripped := strings.TrimSpace(lines[search])

			if strings.HasPrefix(stripped, "translate ") {
				// A new named block terminates the forward search.
				state = stateScanning
				i++
				continue
			}

			tag, text, ok := dialogueParts(stripped)
			if !ok {
				search++
				continue
			}
			if tag == voiceTag {
				// Voice lines are skipped without ending the search.
				search++
				continue
			}

			if tag == pendingTag {
				entries = append(entries, Entry{
					Source:      pendingSource,
					Translation: text,
					LineNo:      search,
					Tag:         tag,
					Kind:        KindCommentDialogue,
				})
				i = search + 2
			} else {
				i++
			}
			state = stateScanning
		}
	}
}

const voiceTag = "voice"

// commentRemainder returns the content after the first '#', with leading
// whitespace removed.
func commentRemainder(line string) string {
	idx := strings.Index(line, "#")
	if idx == -1 {
		return line
	}
	return strings.TrimLeft(line[idx+1:], " \t")
}

// isMetaComment reports whether a comment carries engine file-position
// metadata rather than translatable text.
func isMetaComment(remainder string) bool {
	return strings.HasPrefix(remainder, "game/") || strings.HasPrefix(remainder, "renpy/")
}
