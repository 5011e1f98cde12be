package cache

import "time"

// Status tracks an item through its translation lifecycle.
type Status string

const (
	StatusUntranslated     Status = "untranslated"
	StatusTranslated       Status = "translated"
	StatusTranslatedInPast Status = "translated_in_past"
	StatusExcluded         Status = "excluded"
)

// TextType identifies what kind of script construct produced an item.
type TextType string

const (
	TextTypeOldNew   TextType = "old_new"
	TextTypeDialogue TextType = "dialogue"
)

// Extra carries parser positional data needed for write-back.
type Extra struct {
	LineNo int    `json:"line_no"`
	Tag    string `json:"tag,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Item is one translatable unit. Src is immutable once read; Dst, Status
// and RetryCount are mutated by the dispatcher and the checker's glossary
// auto-fix. Items are replaced wholesale on re-read, never destroyed
// individually.
type Item struct {
	Src        string   `json:"src"`
	Dst        string   `json:"dst"`
	FilePath   string   `json:"file_path"`
	Row        int      `json:"row"`
	Status     Status   `json:"status"`
	RetryCount int      `json:"retry_count"`
	TextType   TextType `json:"text_type"`
	FileType   string   `json:"file_type"`
	Extra      Extra    `json:"extra"`
}

// Project is per-project metadata stored beside the item list.
type Project struct {
	Name           string    `json:"name"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	ItemCount      int       `json:"item_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
