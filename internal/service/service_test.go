package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/Dclef/renpybox-sub001/internal/cache"
	"github.com/Dclef/renpybox-sub001/internal/config"
	"github.com/Dclef/renpybox-sub001/internal/persistence"
	"github.com/Dclef/renpybox-sub001/internal/script"
)

const sampleScript = `# game/script.rpy:10
translate chinese start_01:

    # e "こんにちは。"
    e "こんにちは。"

translate chinese strings:

    old "世界"
    new ""
`

func TestItemsFromEntries(t *testing.T) {
	entries := script.Parse(sampleScript)
	require.Len(t, entries, 2)

	items := itemsFromEntries("script.rpy", entries)
	require.Len(t, items, 2)
	require.Equal(t, "こんにちは。", items[0].Src)
	require.Equal(t, cache.StatusUntranslated, items[0].Status)
	require.Equal(t, cache.TextTypeDialogue, items[0].TextType)
	require.Equal(t, cache.TextTypeOldNew, items[1].TextType)
	require.Equal(t, 0, items[0].Row)
	require.Equal(t, 1, items[1].Row)
}

func TestItemsFromEntriesKeepsPastTranslation(t *testing.T) {
	entries := script.Parse("translate chinese strings:\n\n    old \"世界\"\n    new \"世界之光\"\n")
	items := itemsFromEntries("script.rpy", entries)
	require.Len(t, items, 1)
	require.Equal(t, cache.StatusTranslatedInPast, items[0].Status)
	require.Equal(t, "世界之光", items[0].Dst)
}

func TestMergePastTranslations(t *testing.T) {
	fresh := []*cache.Item{
		{Src: "こんにちは", FilePath: "a.rpy", Status: cache.StatusUntranslated},
		{Src: "新しい", FilePath: "a.rpy", Status: cache.StatusUntranslated},
	}
	previous := []*cache.Item{
		{Src: "こんにちは", Dst: "你好", FilePath: "a.rpy", Status: cache.StatusTranslated},
		{Src: "こんにちは", Dst: "無視", FilePath: "b.rpy", Status: cache.StatusTranslated},
	}

	merged := mergePastTranslations(fresh, previous)
	require.Equal(t, 1, merged)
	require.Equal(t, cache.StatusTranslatedInPast, fresh[0].Status)
	require.Equal(t, "你好", fresh[0].Dst)
	require.Equal(t, cache.StatusUntranslated, fresh[1].Status)
}

func TestEntriesForWriteBack(t *testing.T) {
	items := []*cache.Item{
		{Src: "a", Dst: "A", Status: cache.StatusTranslated, Extra: cache.Extra{LineNo: 3, Kind: string(script.KindOldNew)}},
		{Src: "b", Dst: "", Status: cache.StatusTranslated},
		{Src: "c", Dst: "C", Status: cache.StatusUntranslated},
		{Src: "d", Dst: "D", Status: cache.StatusTranslatedInPast, Extra: cache.Extra{LineNo: 7}},
	}
	entries := entriesForWriteBack(items)
	require.Len(t, entries, 2)
	require.Equal(t, 3, entries[0].LineNo)
	require.Equal(t, script.KindOldNew, entries[0].Kind)
	require.Equal(t, "D", entries[1].Translation)
}

func TestPromptBuilder(t *testing.T) {
	b := promptBuilder{targetLanguage: "zh"}
	chunk := []*cache.Item{{Src: "こんにちは"}, {Src: "さようなら"}}
	preceding := []*cache.Item{{Src: "前の行", Dst: "前一行"}}

	msgs := b.Build(chunk, preceding)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].Role)
	require.Contains(t, msgs[0].Content, "zh")
	require.Contains(t, msgs[0].Content, `"translations"`)
	require.Contains(t, msgs[1].Content, "前一行")
	require.Contains(t, msgs[1].Content, "1. こんにちは")
	require.Contains(t, msgs[1].Content, "2. さようなら")
	require.Contains(t, msgs[1].Content, "2 lines")
}

func TestPromptBuilderWithoutContext(t *testing.T) {
	b := promptBuilder{targetLanguage: "en"}
	msgs := b.Build([]*cache.Item{{Src: "テスト"}}, nil)
	require.NotContains(t, msgs[1].Content, "context")
}

func TestRunFullPipeline(t *testing.T) {
	gameDir := t.TempDir()
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "script.rpy"), []byte(sampleScript), 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"translations":["你好。","世界之光"],"glossary":[{"src":"世界","dst":"世界之光"}]}`,
				},
			}},
			"usage": map[string]int{"prompt_tokens": 50, "completion_tokens": 20},
		})
	}))
	defer server.Close()

	cfg := &config.Config{
		GameDir:        gameDir,
		ProjectDir:     projectDir,
		TargetLanguage: "zh",
		GlossaryFile:   "glossary.json",
		LineLimit:      30,
		ContextLines:   5,
		MaxRound:       3,
		RetryThreshold: 3,
	}
	platform := config.Platform{
		Name:      "test-openai",
		APIURL:    server.URL + "/v1",
		APIFormat: "openai",
		Model:     "test-model",
		Timeout:   10,
		Workers:   1,
	}
	ledger, err := persistence.NewSQLiteStore(filepath.Join(projectDir, "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()

	svc := New(cfg, platform, ledger, cron.New())
	require.NoError(t, svc.Run(context.Background()))

	// Every item carries its translation.
	for _, item := range svc.store.Items() {
		require.Equal(t, cache.StatusTranslated, item.Status)
		require.NotEmpty(t, item.Dst)
	}

	// Cache snapshot written.
	require.FileExists(t, filepath.Join(projectDir, "cache", "items.json"))
	require.FileExists(t, filepath.Join(projectDir, "cache", "project.json"))

	// Translations spliced into a copy of the script.
	out, err := os.ReadFile(filepath.Join(projectDir, translatedDirName, "script.rpy"))
	require.NoError(t, err)
	require.Contains(t, string(out), `e "你好。"`)
	require.Contains(t, string(out), `new "世界之光"`)
	require.Contains(t, string(out), `# e "こんにちは。"`)

	// Model-proposed glossary terms persisted.
	require.FileExists(t, filepath.Join(projectDir, "glossary.json"))

	// Round recorded in the ledger.
	rounds, err := ledger.ListRounds(context.Background(), filepath.Base(gameDir))
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	require.Equal(t, 1, rounds[0].BatchesCompleted)
	require.Equal(t, 50, rounds[0].InputTokens)
}

func TestRunReusesPreviousCache(t *testing.T) {
	gameDir := t.TempDir()
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "script.rpy"), []byte(sampleScript), 0o644))

	// Seed a previous cache generation holding both translations.
	prev := cache.NewStore()
	prev.SetItems([]*cache.Item{
		{Src: "こんにちは。", Dst: "你好。", FilePath: "script.rpy", Status: cache.StatusTranslated},
		{Src: "世界", Dst: "世界之光", FilePath: "script.rpy", Status: cache.StatusTranslated},
	})
	require.NoError(t, prev.Save(projectDir))

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "should not be called", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := &config.Config{
		GameDir:        gameDir,
		ProjectDir:     projectDir,
		TargetLanguage: "zh",
		GlossaryFile:   "glossary.json",
		LineLimit:      30,
		ContextLines:   5,
		MaxRound:       1,
		RetryThreshold: 3,
	}
	platform := config.Platform{
		Name:      "test-openai",
		APIURL:    server.URL + "/v1",
		APIFormat: "openai",
		Timeout:   10,
		Workers:   1,
	}

	svc := New(cfg, platform, nil, cron.New())
	require.NoError(t, svc.Run(context.Background()))
	require.Zero(t, calls)

	out, err := os.ReadFile(filepath.Join(projectDir, translatedDirName, "script.rpy"))
	require.NoError(t, err)
	require.Contains(t, string(out), `e "你好。"`)
}

func TestScheduleRegistersNoPeriodicStoreJobs(t *testing.T) {
	// Dispatch workers write item fields lock-free, so nothing besides
	// the pipeline itself may be on the cron schedule: a periodic job
	// touching the store could run mid-dispatch.
	c := cron.New()
	cfg := &config.Config{
		GameDir:      t.TempDir(),
		ProjectDir:   t.TempDir(),
		ScheduleSpec: "@hourly",
	}
	svc := New(cfg, config.Platform{APIURL: "http://127.0.0.1:1/v1", APIFormat: "openai"}, nil, c)

	require.NoError(t, svc.Schedule(context.Background()))
	require.Len(t, c.Entries(), 1)
}

func TestCacheFlushedAtRoundBoundary(t *testing.T) {
	gameDir := t.TempDir()
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "script.rpy"), []byte(sampleScript), 0o644))

	itemsFile := filepath.Join(projectDir, "cache", "items.json")
	var flushedBeforeSecondRound bool
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// Undecodable answer fails the batch, forcing a second round.
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{"content": "not a payload"},
				}},
			})
			return
		}
		if _, err := os.Stat(itemsFile); err == nil {
			flushedBeforeSecondRound = true
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"translations":["你好。","世界之光"]}`,
				},
			}},
		})
	}))
	defer server.Close()

	cfg := &config.Config{
		GameDir:        gameDir,
		ProjectDir:     projectDir,
		TargetLanguage: "zh",
		GlossaryFile:   "glossary.json",
		LineLimit:      30,
		ContextLines:   5,
		MaxRound:       3,
		RetryThreshold: 3,
	}
	platform := config.Platform{APIURL: server.URL + "/v1", APIFormat: "openai", Timeout: 10, Workers: 1}

	svc := New(cfg, platform, nil, cron.New())
	require.NoError(t, svc.Run(context.Background()))

	require.GreaterOrEqual(t, calls, 2)
	require.True(t, flushedBeforeSecondRound)
	for _, item := range svc.store.Items() {
		require.Equal(t, cache.StatusTranslated, item.Status)
	}
}

func TestUnpackArchives(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	gameDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "archive.rpa"), []byte("rpa"), 0o644))

	toolDir := t.TempDir()
	argsFile := filepath.Join(toolDir, "args.txt")
	tool := filepath.Join(toolDir, "rpatool")
	script := "#!/bin/sh\necho \"$@\" >> " + argsFile + "\nif [ \"$1\" = \"-l\" ]; then\n  echo tl/zh/script.rpy\n  echo script.rpy\nfi\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	cfg := &config.Config{GameDir: gameDir, RPAToolPath: tool, UnpackArchives: true}
	svc := New(cfg, config.Platform{}, nil, cron.New())

	require.NoError(t, svc.unpackArchives())

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(args), "-l")
	require.Contains(t, string(args), "-x")
	require.Contains(t, string(args), "archive.rpa")
}

func TestUnpackArchivesMissingTool(t *testing.T) {
	gameDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "archive.rpa"), []byte("rpa"), 0o644))

	cfg := &config.Config{GameDir: gameDir, RPAToolPath: "definitely-not-a-real-binary", UnpackArchives: true}
	svc := New(cfg, config.Platform{}, nil, cron.New())

	err := svc.unpackArchives()
	require.Error(t, err)
	require.Contains(t, err.Error(), "rpatool not found")
}

func TestUnpackArchivesNoArchivesIsNoop(t *testing.T) {
	cfg := &config.Config{GameDir: t.TempDir(), RPAToolPath: "definitely-not-a-real-binary"}
	svc := New(cfg, config.Platform{}, nil, cron.New())
	require.NoError(t, svc.unpackArchives())
}

func TestPackOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	projectDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, translatedDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, translatedDirName, "script.rpy"), []byte("x"), 0o644))

	toolDir := t.TempDir()
	tool := filepath.Join(toolDir, "rpatool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	cfg := &config.Config{ProjectDir: projectDir, RPAToolPath: tool, PackOutput: true}
	svc := New(cfg, config.Platform{}, nil, cron.New())
	svc.store.SetProject(cache.Project{Name: "novel"})

	require.NoError(t, svc.packOutput())
}

func TestPackOutputMissingTool(t *testing.T) {
	projectDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, translatedDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, translatedDirName, "script.rpy"), []byte("x"), 0o644))

	cfg := &config.Config{ProjectDir: projectDir, RPAToolPath: "definitely-not-a-real-binary"}
	svc := New(cfg, config.Platform{}, nil, cron.New())
	svc.store.SetProject(cache.Project{Name: "novel"})

	require.Error(t, svc.packOutput())
}

func TestRunFailsWithoutScripts(t *testing.T) {
	cfg := &config.Config{
		GameDir:    t.TempDir(),
		ProjectDir: t.TempDir(),
	}
	svc := New(cfg, config.Platform{APIURL: "http://127.0.0.1:1/v1", APIFormat: "openai"}, nil, cron.New())
	require.Error(t, svc.Run(context.Background()))
}

func TestStopShortCircuitsRun(t *testing.T) {
	gameDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "script.rpy"), []byte(sampleScript), 0o644))

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := &config.Config{
		GameDir:        gameDir,
		ProjectDir:     t.TempDir(),
		TargetLanguage: "zh",
		GlossaryFile:   "glossary.json",
		LineLimit:      30,
		ContextLines:   5,
		MaxRound:       3,
		RetryThreshold: 3,
	}
	platform := config.Platform{APIURL: server.URL + "/v1", APIFormat: "openai", Timeout: 10, Workers: 1}

	svc := New(cfg, platform, nil, cron.New())
	svc.Stop()
	require.NoError(t, svc.Run(context.Background()))
	require.Zero(t, calls)

	for _, item := range svc.store.Items() {
		require.Equal(t, cache.StatusUntranslated, item.Status)
	}
}
