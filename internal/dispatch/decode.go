package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Dclef/renpybox-sub001/internal/glossary"
)

// Payload is the structured reply the model is prompted to emit.
type Payload struct {
	Translations []string        `json:"translations"`
	Glossary     []glossary.Term `json:"glossary"`
}

// ExtractPayload decodes a model answer into translations plus any new
// glossary terms. Models wrap JSON in code fences or chatter around it,
// so decoding falls back to the first balanced object in the text.
func ExtractPayload(answer string) (Payload, error) {
	s := stripCodeFence(strings.TrimSpace(answer))

	var p Payload
	if err := json.Unmarshal([]byte(s), &p); err == nil {
		return p, nil
	}

	var bare []string
	if err := json.Unmarshal([]byte(s), &bare); err == nil {
		return Payload{Translations: bare}, nil
	}

	if frag, ok := balancedObject(s); ok {
		if err := json.Unmarshal([]byte(frag), &p); err == nil {
			return p, nil
		}
	}
	return Payload{}, fmt.Errorf("no decodable payload in answer")
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// balancedObject returns the first top-level {...} fragment, tracking
// string literals and escapes so braces inside values do not miscount.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
