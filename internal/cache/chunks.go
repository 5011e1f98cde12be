package cache

import (
	"slices"
	"strings"

	"github.com/Dclef/renpybox-sub001/pkg/log"
)

// endLinePunctuation is the fixed set of sentence-final marks that qualify
// a preceding line as usable context. Languages whose sentences end in none
// of these simply get no preceding context.
var endLinePunctuation = []string{
	".", "。", "?", "？", "!", "！", "…", "'", "\"", "’", "”", "」", "』",
}

func endsWithSentencePunctuation(s string) bool {
	for _, p := range endLinePunctuation {
		if strings.HasSuffix(s, p) {
			return true
		}
	}
	return false
}

func countNonBlankLines(s string) int {
	count := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

// GenerateChunks walks the items in order and groups untranslated ones into
// chunks bounded by lineLimit non-blank source lines, never spanning two
// files. Empty-source items are marked translated with an empty translation
// as a side effect. The first item of a chunk is always admitted so one
// oversized item cannot stall the walk. For every chunk a matching
// preceding-context chunk of up to precedingLimit items is returned.
func (s *Store) GenerateChunks(lineLimit, precedingLimit int) (chunks, preceding [][]*Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lineLimit < 1 {
		lineLimit = 1
	}

	lineLength := 0
	chunkStart := 0
	var chunk []*Item

	for i, item := range s.items {
		if item.Status != StatusUntranslated {
			continue
		}

		if strings.TrimSpace(item.Src) == "" {
			item.Dst = ""
			item.Status = StatusTranslated
			continue
		}

		currentLines := countNonBlankLines(item.Src)
		if len(chunk) > 0 &&
			(lineLength+currentLines > lineLimit || item.FilePath != chunk[len(chunk)-1].FilePath) {
			chunks = append(chunks, chunk)
			preceding = append(preceding, s.precedingChunk(chunk, chunkStart, precedingLimit))
			chunk = nil
			lineLength = 0
		}

		if len(chunk) == 0 {
			chunkStart = i
		}
		chunk = append(chunk, item)
		lineLength += currentLines
	}

	if len(chunk) > 0 {
		chunks = append(chunks, chunk)
		preceding = append(preceding, s.precedingChunk(chunk, chunkStart, precedingLimit))
	}

	return chunks, preceding
}

// precedingChunk scans backward from just before the chunk's first item,
// collecting same-file items that end in sentence-final punctuation.
// Excluded and blank-source items are skipped; the scan stops at the first
// non-qualifying candidate, a file change, or the limit, and the collected
// items are reversed back into file order.
func (s *Store) precedingChunk(chunk []*Item, chunkStart, limit int) []*Item {
	var result []*Item

	for i := chunkStart - 1; i >= 0; i-- {
		item := s.items[i]

		if item.Status == StatusExcluded {
			continue
		}

		src := strings.TrimSpace(item.Src)
		if src == "" {
			continue
		}

		if len(result) >= limit {
			break
		}
		if item.FilePath != chunk[len(chunk)-1].FilePath {
			break
		}

		if !endsWithSentencePunctuation(src) {
			log.Debug("Context scan stopped at %s:%d: no sentence-final punctuation", item.FilePath, item.Row)
			break
		}
		result = append(result, item)
	}

	slices.Reverse(result)
	return result
}
