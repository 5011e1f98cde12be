package checker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Dclef/renpybox-sub001/internal/cache"
	"github.com/Dclef/renpybox-sub001/internal/glossary"
	"github.com/Dclef/renpybox-sub001/pkg/log"
)

const (
	reportPrefix        = "result_check_"
	similarityThreshold = 0.80
)

var (
	reKana     = regexp.MustCompile(`[\x{3040}-\x{30ff}]`)
	reHangeul  = regexp.MustCompile(`[\x{ac00}-\x{d7af}]`)
	// A capitalized Latin word glued to a CJK character usually means
	// the model translated only part of the line.
	reMixedScript = regexp.MustCompile(`^["'\(（]*[A-Z][a-z]{1,14}[\x{4e00}-\x{9fff}]`)
)

// Config tunes the audit sweep.
type Config struct {
	SourceLanguage string // ISO 639-1 code of the source texts
	RetryThreshold int
	// PreReplacements rewrite source text and PostReplacements rewrite
	// translated text before any textual comparison, so configured
	// substitutions do not show up as false positives.
	PreReplacements  map[string]string
	PostReplacements map[string]string
}

// Violation is one audit finding, serialized into a report file.
type Violation struct {
	FilePath string `json:"file_path"`
	Row      int    `json:"row"`
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	Detail   string `json:"detail,omitempty"`
}

// Checker sweeps the final cache state and writes one report file per
// check that found violations. The only mutation it performs is the
// glossary auto-fix.
type Checker struct {
	cfg   Config
	gloss glossary.Glossary
}

func New(cfg Config, gloss glossary.Glossary) *Checker {
	return &Checker{cfg: cfg, gloss: gloss}
}

type check struct {
	name string
	run  func(items []*cache.Item) []Violation
}

// Run audits items and writes reports under outDir. Prior report files
// are removed first so repeated runs over an unchanged cache produce
// identical results. Returns the paths of the reports written.
func (c *Checker) Run(items []*cache.Item, outDir string) ([]string, error) {
	if err := removeOldReports(outDir); err != nil {
		return nil, err
	}

	checks := []check{
		{"residual_chars", c.checkResidualChars},
		{"similarity", c.checkSimilarity},
		{"glossary", c.checkGlossary},
		{"mixed_script", c.checkMixedScript},
		{"untranslated", c.checkUntranslated},
		{"retry_limit", c.checkRetryLimit},
	}

	var written []string
	for _, ch := range checks {
		violations := ch.run(items)
		if len(violations) == 0 {
			log.Info("check %s: no violations", ch.name)
			continue
		}
		path := filepath.Join(outDir, reportPrefix+ch.name+".json")
		if err := writeReport(path, violations); err != nil {
			return written, fmt.Errorf("write report %s: %w", ch.name, err)
		}
		log.Warn("check %s: %d violations, report at %s", ch.name, len(violations), path)
		written = append(written, path)
	}
	return written, nil
}

func (c *Checker) checkResidualChars(items []*cache.Item) []Violation {
	var re *regexp.Regexp
	switch c.cfg.SourceLanguage {
	case "ja":
		re = reKana
	case "ko":
		re = reHangeul
	default:
		return nil
	}

	// Residue is tested against the raw translation: replacement rules
	// are for textual comparisons, not for excusing leftover script.
	var out []Violation
	for _, item := range translated(items) {
		if re.MatchString(item.Dst) {
			out = append(out, violation(item, "source-script characters remain"))
		}
	}
	return out
}

func (c *Checker) checkSimilarity(items []*cache.Item) []Violation {
	var out []Violation
	for _, item := range translated(items) {
		src := strings.TrimSpace(c.replaced(item.Src, c.cfg.PreReplacements))
		dst := strings.TrimSpace(c.replaced(item.Dst, c.cfg.PostReplacements))
		if src == "" || dst == "" {
			continue
		}
		if strings.Contains(src, dst) || strings.Contains(dst, src) {
			out = append(out, violation(item, "translation contains or equals source"))
			continue
		}
		if jaccard(src, dst) > similarityThreshold {
			out = append(out, violation(item, "translation too similar to source"))
		}
	}
	return out
}

// checkGlossary verifies configured terms were honored. When the source
// term is still literally present in the output it is repaired in place;
// otherwise the miss is reported.
func (c *Checker) checkGlossary(items []*cache.Item) []Violation {
	var out []Violation
	for _, item := range translated(items) {
		src := c.replaced(item.Src, c.cfg.PreReplacements)
		for _, term := range c.gloss {
			if term.Src == "" || !strings.Contains(src, term.Src) {
				continue
			}
			if strings.Contains(item.Dst, term.Dst) {
				continue
			}
			if strings.Contains(item.Dst, term.Src) {
				item.Dst = strings.ReplaceAll(item.Dst, term.Src, term.Dst)
				log.Info("glossary auto-fix %q -> %q at %s:%d", term.Src, term.Dst, item.FilePath, item.Row)
				continue
			}
			out = append(out, violation(item, fmt.Sprintf("missing glossary term %q -> %q", term.Src, term.Dst)))
		}
	}
	return out
}

func (c *Checker) checkMixedScript(items []*cache.Item) []Violation {
	var out []Violation
	for _, item := range translated(items) {
		if reMixedScript.MatchString(item.Dst) {
			out = append(out, violation(item, "capitalized Latin word glued to CJK text"))
		}
	}
	return out
}

func (c *Checker) checkUntranslated(items []*cache.Item) []Violation {
	var out []Violation
	for _, item := range items {
		if item.Status == cache.StatusUntranslated && strings.TrimSpace(item.Src) != "" {
			out = append(out, violation(item, "still untranslated"))
		}
	}
	return out
}

func (c *Checker) checkRetryLimit(items []*cache.Item) []Violation {
	if c.cfg.RetryThreshold <= 0 {
		return nil
	}
	var out []Violation
	for _, item := range items {
		if item.RetryCount >= c.cfg.RetryThreshold {
			out = append(out, violation(item, fmt.Sprintf("retry count reached %d", item.RetryCount)))
		}
	}
	return out
}

// replaced applies rules in sorted key order so repeated audits see the
// same rewritten text.
func (c *Checker) replaced(text string, rules map[string]string) string {
	keys := make([]string, 0, len(rules))
	for from := range rules {
		keys = append(keys, from)
	}
	sort.Strings(keys)
	for _, from := range keys {
		text = strings.ReplaceAll(text, from, rules[from])
	}
	return text
}

func translated(items []*cache.Item) []*cache.Item {
	out := make([]*cache.Item, 0, len(items))
	for _, item := range items {
		if item.Status == cache.StatusTranslated && strings.TrimSpace(item.Dst) != "" {
			out = append(out, item)
		}
	}
	return out
}

func violation(item *cache.Item, detail string) Violation {
	return Violation{
		FilePath: item.FilePath,
		Row:      item.Row,
		Src:      item.Src,
		Dst:      item.Dst,
		Detail:   detail,
	}
}

// jaccard computes character-set similarity between two strings.
func jaccard(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range s {
		set[r] = true
	}
	return set
}

func removeOldReports(outDir string) error {
	matches, err := filepath.Glob(filepath.Join(outDir, reportPrefix+"*.json"))
	if err != nil {
		return fmt.Errorf("scan old reports: %w", err)
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove old report: %w", err)
		}
	}
	return nil
}

func writeReport(path string, violations []Violation) error {
	data, err := json.MarshalIndent(violations, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
