package script

// Kind identifies which script construct an entry was parsed from.
type Kind string

const (
	// KindOldNew is an old/new quoted-string pair inside a strings block.
	KindOldNew Kind = "old_new"
	// KindCommentDialogue is a commented original line followed by the
	// live dialogue line carrying the same speaker tag.
	KindCommentDialogue Kind = "comment_dialogue"
)

// Entry is one translatable occurrence with its position in the file.
// LineNo is the 0-based index of the line that receives the translation
// on write-back (the "new" line or the live dialogue line).
type Entry struct {
	Source      string
	Translation string
	LineNo      int
	Tag         string
	Kind        Kind
}
