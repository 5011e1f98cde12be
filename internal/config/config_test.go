package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dclef/renpybox-sub001/internal/provider"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 30, cfg.LineLimit)
	require.Equal(t, 16, cfg.MaxRound)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GAME_DIR", "/games/novel/game")
	t.Setenv("LINE_LIMIT", "12")
	t.Setenv("MAX_ROUND", "4")

	cfg := Load()
	require.Equal(t, "/games/novel/game", cfg.GameDir)
	require.Equal(t, 12, cfg.LineLimit)
	require.Equal(t, 4, cfg.MaxRound)
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("LINE_LIMIT", "many")
	cfg := Load()
	require.Equal(t, 30, cfg.LineLimit)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Load()
	cfg.LineLimit = 0
	require.Error(t, cfg.Validate())

	cfg = Load()
	cfg.GameDir = ""
	require.Error(t, cfg.Validate())
}

func TestLoadPlatform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "local-sakura",
		"api_url": "http://127.0.0.1:8080/v1",
		"model": "sakura-14b",
		"api_format": "sakura",
		"max_tokens": 1024,
		"temperature": 0.1,
		"rpm": 0
	}`), 0o644))

	p, err := LoadPlatform(path)
	require.NoError(t, err)
	require.Equal(t, "local-sakura", p.Name)
	require.Equal(t, 120, p.Timeout)
	require.NotNil(t, p.Temperature)
	require.Equal(t, 0.1, *p.Temperature)
	require.Nil(t, p.TopP)

	pc := p.ProviderConfig()
	require.Equal(t, provider.FormatSakura, pc.Format)
	require.Equal(t, "sakura-14b", pc.Model)
}

func TestLoadPlatformBOMTolerant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	body := append([]byte("\xef\xbb\xbf"), []byte(`{"name":"x","api_url":"https://api.example.com","api_format":"openai"}`)...)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	p, err := LoadPlatform(path)
	require.NoError(t, err)
	require.Equal(t, "x", p.Name)
}

func TestLoadPlatformRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"nourl"}`), 0o644))

	_, err := LoadPlatform(path)
	require.Error(t, err)
}
