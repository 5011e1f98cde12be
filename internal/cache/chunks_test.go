package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func untranslated(src, file string) *Item {
	return &Item{Src: src, FilePath: file, Status: StatusUntranslated}
}

func TestGenerateChunks_RespectsLineLimit(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		untranslated("a", "f1"),
		untranslated("b", "f1"),
		untranslated("c", "f1"),
	})

	chunks, preceding := s.GenerateChunks(2, 0)
	require.Len(t, chunks, 2)
	require.Len(t, preceding, 2)
	require.Len(t, chunks[0], 2)
	require.Len(t, chunks[1], 1)
}

func TestGenerateChunks_NeverSpansFiles(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		untranslated("a", "f1"),
		untranslated("b", "f2"),
		untranslated("c", "f2"),
	})

	chunks, _ := s.GenerateChunks(100, 0)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		require.NotEmpty(t, chunk)
		for _, item := range chunk {
			require.Equal(t, chunk[0].FilePath, item.FilePath)
		}
	}
}

func TestGenerateChunks_OversizedFirstItemAdmitted(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		untranslated("line1\nline2\nline3\nline4", "f1"),
		untranslated("b", "f1"),
	})

	chunks, _ := s.GenerateChunks(2, 0)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 1)
	require.Len(t, chunks[1], 1)
}

func TestGenerateChunks_EmptySourceMarkedTranslated(t *testing.T) {
	s := NewStore()
	empty := &Item{Src: "   ", FilePath: "f1", Status: StatusUntranslated, Dst: "stale"}
	s.SetItems([]*Item{empty, untranslated("a", "f1")})

	chunks, _ := s.GenerateChunks(10, 0)
	require.Len(t, chunks, 1)
	require.Equal(t, StatusTranslated, empty.Status)
	require.Equal(t, "", empty.Dst)
}

func TestGenerateChunks_SkipsNonUntranslated(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		{Src: "done", FilePath: "f1", Status: StatusTranslated},
		untranslated("a", "f1"),
		{Src: "old", FilePath: "f1", Status: StatusTranslatedInPast},
		untranslated("b", "f1"),
	})

	chunks, _ := s.GenerateChunks(10, 0)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 2)
}

func TestGenerateChunks_PrecedingContext(t *testing.T) {
	s := NewStore()
	items := []*Item{
		{Src: "First sentence.", FilePath: "f1", Status: StatusTranslated},
		{Src: "Second sentence.", FilePath: "f1", Status: StatusTranslated},
		{Src: "Third sentence.", FilePath: "f1", Status: StatusTranslated},
		untranslated("target", "f1"),
	}
	s.SetItems(items)

	chunks, preceding := s.GenerateChunks(10, 2)
	require.Len(t, chunks, 1)
	require.Len(t, preceding, 1)

	// limited to 2, restored to file order
	require.Len(t, preceding[0], 2)
	require.Equal(t, "Second sentence.", preceding[0][0].Src)
	require.Equal(t, "Third sentence.", preceding[0][1].Src)
}

func TestGenerateChunks_PrecedingStopsWithoutPunctuation(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		{Src: "Full sentence.", FilePath: "f1", Status: StatusTranslated},
		{Src: "no punctuation", FilePath: "f1", Status: StatusTranslated},
		{Src: "Closer sentence!", FilePath: "f1", Status: StatusTranslated},
		untranslated("target", "f1"),
	})

	_, preceding := s.GenerateChunks(10, 5)
	require.Len(t, preceding, 1)
	require.Len(t, preceding[0], 1)
	require.Equal(t, "Closer sentence!", preceding[0][0].Src)
}

func TestGenerateChunks_PrecedingStopsAtFileBoundary(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		{Src: "Other file.", FilePath: "f0", Status: StatusTranslated},
		{Src: "Same file.", FilePath: "f1", Status: StatusTranslated},
		untranslated("target", "f1"),
	})

	_, preceding := s.GenerateChunks(10, 5)
	require.Len(t, preceding, 1)
	require.Len(t, preceding[0], 1)
	require.Equal(t, "Same file.", preceding[0][0].Src)
}

func TestGenerateChunks_PrecedingSkipsExcluded(t *testing.T) {
	s := NewStore()
	s.SetItems([]*Item{
		{Src: "Kept sentence.", FilePath: "f1", Status: StatusTranslated},
		{Src: "dropped.", FilePath: "f1", Status: StatusExcluded},
		untranslated("target", "f1"),
	})

	_, preceding := s.GenerateChunks(10, 5)
	require.Len(t, preceding[0], 1)
	require.Equal(t, "Kept sentence.", preceding[0][0].Src)
}

func TestGenerateChunks_EveryUntranslatedItemInExactlyOneChunk(t *testing.T) {
	s := NewStore()
	var want []*Item
	items := []*Item{}
	for i := 0; i < 7; i++ {
		it := untranslated("text", "f1")
		items = append(items, it)
		want = append(want, it)
	}
	items = append(items, &Item{Src: "done.", FilePath: "f1", Status: StatusTranslated})
	s.SetItems(items)

	chunks, _ := s.GenerateChunks(3, 0)
	seen := map[*Item]int{}
	for _, chunk := range chunks {
		for _, item := range chunk {
			seen[item]++
		}
	}
	require.Len(t, seen, len(want))
	for _, item := range want {
		require.Equal(t, 1, seen[item])
	}
}
