// Package glossary holds source-term to required-translation mappings used
// both for prompt enrichment and for post-run compliance checks.
package glossary

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Term is one source-term to required-translation mapping.
type Term struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// Glossary is an ordered list of terms. Order is preserved so that checks
// and prompt sections are deterministic.
type Glossary []Term

// Load reads a glossary from a JSON file.
func Load(path string) (Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g Glossary
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// Save writes a glossary to a JSON file with indentation.
func Save(path string, g Glossary) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Match filters the glossary to terms whose source appears in at least one
// of the given texts. Matching is a case-sensitive substring test, which is
// correct for proper nouns.
func (g Glossary) Match(texts []string) Glossary {
	var matched Glossary

	for _, term := range g {
		if term.Src == "" {
			continue
		}
		for _, text := range texts {
			if strings.Contains(text, term.Src) {
				matched = append(matched, term)
				break
			}
		}
	}

	return matched
}

// PromptSection renders matched terms as "src -> dst" lines for inclusion
// in a translation prompt, sorted for stable output.
func (g Glossary) PromptSection() string {
	if len(g) == 0 {
		return ""
	}

	lines := make([]string, 0, len(g))
	for _, term := range g {
		lines = append(lines, term.Src+" -> "+term.Dst)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
