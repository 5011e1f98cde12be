package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Dclef/renpybox-sub001/pkg/log"
)

// Config holds process-level settings sourced from the environment.
// Platform (provider) settings live in a separate JSON file, see
// LoadPlatform.
type Config struct {
	LogLevel string
	LogFile  string

	// GameDir is the Ren'Py game directory to scan for .rpy scripts.
	GameDir string
	// ProjectDir receives the cache snapshot, reports and glossary.
	ProjectDir string

	TargetLanguage string
	PlatformFile   string
	GlossaryFile   string
	DatabasePath   string
	RPAToolPath    string
	// UnpackArchives extracts .rpa archives found in the game directory
	// before script discovery; PackOutput bundles the translated scripts
	// into an .rpa archive after write-back.
	UnpackArchives bool
	PackOutput     bool

	// LineLimit bounds non-blank source lines per translation chunk;
	// ContextLines bounds the preceding-context window.
	LineLimit    int
	ContextLines int

	MaxRound       int
	RetryThreshold int

	// ScheduleSpec is a cron expression; empty means run once.
	ScheduleSpec string
}

// Load reads configuration from the environment with defaults suited to
// a local SakuraLLM setup.
func Load() *Config {
	return &Config{
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogFile:  getEnvString("LOG_FILE", ""),

		GameDir:    getEnvString("GAME_DIR", "game"),
		ProjectDir: getEnvString("PROJECT_DIR", "project"),

		TargetLanguage: getEnvString("TARGET_LANGUAGE", "zh"),
		PlatformFile:   getEnvString("PLATFORM_FILE", "platform.json"),
		GlossaryFile:   getEnvString("GLOSSARY_FILE", "glossary.json"),
		DatabasePath:   getEnvString("DATABASE_PATH", "renpybox.db"),
		RPAToolPath:    getEnvString("RPATOOL_PATH", "rpatool"),
		UnpackArchives: getEnvBool("UNPACK_ARCHIVES", false),
		PackOutput:     getEnvBool("PACK_OUTPUT", false),

		LineLimit:    getEnvInt("LINE_LIMIT", 30),
		ContextLines: getEnvInt("CONTEXT_LINES", 5),

		MaxRound:       getEnvInt("MAX_ROUND", 16),
		RetryThreshold: getEnvInt("RETRY_THRESHOLD", 3),

		ScheduleSpec: getEnvString("SCHEDULE_SPEC", ""),
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.GameDir == "" {
		return fmt.Errorf("GAME_DIR must not be empty")
	}
	if c.ProjectDir == "" {
		return fmt.Errorf("PROJECT_DIR must not be empty")
	}
	if c.LineLimit < 1 {
		return fmt.Errorf("LINE_LIMIT must be at least 1, got %d", c.LineLimit)
	}
	if c.MaxRound < 1 {
		return fmt.Errorf("MAX_ROUND must be at least 1, got %d", c.MaxRound)
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn("invalid boolean for %s: %q, using %t", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warn("invalid integer for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
