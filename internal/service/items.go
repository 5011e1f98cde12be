package service

import (
	"strings"

	"github.com/Dclef/renpybox-sub001/internal/cache"
	"github.com/Dclef/renpybox-sub001/internal/script"
)

// itemsFromEntries converts parsed script entries into cache items for
// one file. Entries that already carry a differing live text are treated
// as translated in a previous session.
func itemsFromEntries(relPath string, entries []script.Entry) []*cache.Item {
	items := make([]*cache.Item, 0, len(entries))
	for i, e := range entries {
		textType := cache.TextTypeDialogue
		if e.Kind == script.KindOldNew {
			textType = cache.TextTypeOldNew
		}
		item := &cache.Item{
			Src:      e.Source,
			FilePath: relPath,
			Row:      i,
			Status:   cache.StatusUntranslated,
			TextType: textType,
			FileType: "rpy",
			Extra: cache.Extra{
				LineNo: e.LineNo,
				Tag:    e.Tag,
				Kind:   string(e.Kind),
			},
		}
		if e.Translation != "" && e.Translation != e.Source {
			item.Dst = e.Translation
			item.Status = cache.StatusTranslatedInPast
		}
		items = append(items, item)
	}
	return items
}

// mergePastTranslations carries finished translations from a previous
// cache generation into freshly parsed items, matched by source text
// within the same file.
func mergePastTranslations(fresh, previous []*cache.Item) int {
	type key struct{ file, src string }
	past := make(map[key]string)
	for _, item := range previous {
		if item.Status != cache.StatusTranslated && item.Status != cache.StatusTranslatedInPast {
			continue
		}
		if strings.TrimSpace(item.Dst) == "" {
			continue
		}
		past[key{item.FilePath, item.Src}] = item.Dst
	}

	merged := 0
	for _, item := range fresh {
		if item.Status != cache.StatusUntranslated {
			continue
		}
		if dst, ok := past[key{item.FilePath, item.Src}]; ok {
			item.Dst = dst
			item.Status = cache.StatusTranslatedInPast
			merged++
		}
	}
	return merged
}

// entriesForWriteBack rebuilds writer entries for one file from items
// that hold a usable translation.
func entriesForWriteBack(items []*cache.Item) []script.Entry {
	var entries []script.Entry
	for _, item := range items {
		switch item.Status {
		case cache.StatusTranslated, cache.StatusTranslatedInPast:
		default:
			continue
		}
		if strings.TrimSpace(item.Dst) == "" {
			continue
		}
		entries = append(entries, script.Entry{
			Source:      item.Src,
			Translation: item.Dst,
			LineNo:      item.Extra.LineNo,
			Tag:         item.Extra.Tag,
			Kind:        script.Kind(item.Extra.Kind),
		})
	}
	return entries
}

// groupByFile partitions items by their source file, keeping item order.
func groupByFile(items []*cache.Item) map[string][]*cache.Item {
	out := make(map[string][]*cache.Item)
	for _, item := range items {
		out[item.FilePath] = append(out[item.FilePath], item)
	}
	return out
}
