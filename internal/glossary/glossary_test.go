package glossary

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	g := Glossary{
		{Src: "Eileen", Dst: "艾琳"},
		{Src: "Ren'Py", Dst: "Ren'Py"},
		{Src: "Absent", Dst: "缺席"},
	}

	matched := g.Match([]string{"Eileen waves.", "Powered by Ren'Py."})
	require.Len(t, matched, 2)
	require.Equal(t, "Eileen", matched[0].Src)
	require.Equal(t, "Ren'Py", matched[1].Src)
}

func TestMatch_CaseSensitive(t *testing.T) {
	g := Glossary{{Src: "Eileen", Dst: "艾琳"}}
	require.Empty(t, g.Match([]string{"eileen waves."}))
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.json")
	g := Glossary{{Src: "Eileen", Dst: "艾琳"}}

	require.NoError(t, Save(path, g))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, g, loaded)
}

func TestPromptSection(t *testing.T) {
	g := Glossary{{Src: "b", Dst: "2"}, {Src: "a", Dst: "1"}}
	require.Equal(t, "a -> 1\nb -> 2", g.PromptSection())
	require.Equal(t, "", Glossary{}.PromptSection())
}
