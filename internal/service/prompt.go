package service

import (
	"fmt"
	"strings"

	"github.com/Dclef/renpybox-sub001/internal/cache"
	"github.com/Dclef/renpybox-sub001/internal/glossary"
	"github.com/Dclef/renpybox-sub001/internal/provider"
)

// promptBuilder assembles the chat messages for one batch. The contract
// with the model is a JSON object with one translation per input line
// plus any new glossary terms it coined.
type promptBuilder struct {
	targetLanguage string
	gloss          glossary.Glossary
}

func (b promptBuilder) Build(chunk, preceding []*cache.Item) []provider.Message {
	var sys strings.Builder
	fmt.Fprintf(&sys, "You are a professional visual novel translator. Translate each numbered line into %s.\n", b.targetLanguage)
	sys.WriteString("Keep Ren'Py markup intact: {tags}, [variables], \\n and escaped quotes must survive unchanged.\n")
	sys.WriteString("Preserve the tone and speaker voice of the original dialogue.\n")
	sys.WriteString(`Reply with JSON only: {"translations": ["..."], "glossary": [{"src": "...", "dst": "..."}]}. `)
	sys.WriteString("The translations array must contain exactly one string per input line, in order. ")
	sys.WriteString("Add a glossary entry only for a recurring proper noun you translated for the first time.\n")

	srcs := make([]string, len(chunk))
	for i, item := range chunk {
		srcs[i] = item.Src
	}
	if matched := b.gloss.Match(srcs); len(matched) > 0 {
		sys.WriteString("\nUse these fixed term translations:\n")
		sys.WriteString(matched.PromptSection())
	}

	var user strings.Builder
	if len(preceding) > 0 {
		user.WriteString("Preceding lines for context, do not translate them:\n")
		for _, item := range preceding {
			text := item.Src
			if strings.TrimSpace(item.Dst) != "" {
				text = item.Dst
			}
			user.WriteString(text)
			user.WriteString("\n")
		}
		user.WriteString("\n")
	}
	fmt.Fprintf(&user, "Translate the following %d lines:\n", len(chunk))
	for i, item := range chunk {
		fmt.Fprintf(&user, "%d. %s\n", i+1, item.Src)
	}

	return []provider.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: user.String()},
	}
}
