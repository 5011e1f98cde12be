package cache

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectSourceLanguage guesses the dominant source language of the items
// by majority vote over per-item detections.
func DetectSourceLanguage(items []*Item) language.Tag {
	if len(items) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, item := range items {
		if item.Src == "" {
			continue
		}
		lang := whatlanggo.DetectLang(item.Src).Iso6391()
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	if topLang == "" {
		return language.Und
	}
	return language.All.Make(topLang)
}
