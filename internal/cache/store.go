package cache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Dclef/renpybox-sub001/pkg/log"
)

// SaveInterval is the minimum spacing between two autosave flushes.
const SaveInterval = 15 * time.Second

// Store holds the authoritative in-memory item list plus project metadata.
// Load, Save and Flush serialize on a single lock; dispatch workers mutate
// disjoint item subsets without per-item locking.
type Store struct {
	mu      sync.Mutex
	items   []*Item
	project Project

	saveRequested bool
	savePath      string
	lastSave      time.Time
}

func NewStore() *Store {
	return &Store{}
}

// SetItems replaces the item list wholesale, as happens on re-read.
func (s *Store) SetItems(items []*Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

// Items returns the live item slice. Callers that mutate items must own
// them exclusively (one batch per worker).
func (s *Store) Items() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items
}

func (s *Store) SetProject(p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = p
}

func (s *Store) Project() Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// CountByStatus returns how many items currently carry the given status.
func (s *Store) CountByStatus(status Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		if item.Status == status {
			count++
		}
	}
	return count
}

// ResetSameTranslationItems reverts every translated item whose translation
// equals its source back to untranslated, clearing the translation and retry
// count. Recovers items a provider echoed back unchanged, e.g. after a
// safety refusal. Returns the number of reverted items.
func (s *Store) ResetSameTranslationItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.items {
		if item.Status != StatusTranslated {
			continue
		}
		src := strings.TrimSpace(item.Src)
		dst := strings.TrimSpace(item.Dst)
		if src != "" && dst != "" && src == dst {
			item.Status = StatusUntranslated
			item.Dst = ""
			item.RetryCount = 0
			count++
		}
	}
	return count
}

func itemsPath(dir string) string {
	return filepath.Join(dir, "cache", "items.json")
}

func projectPath(dir string) string {
	return filepath.Join(dir, "cache", "project.json")
}

// Save writes the item list and project metadata under dir/cache. Items are
// streamed one record at a time instead of marshaling the whole list into a
// single buffer.
func (s *Store) Save(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(dir)
}

func (s *Store) saveLocked(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "cache"), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	f, err := os.Create(itemsPath(dir))
	if err != nil {
		return fmt.Errorf("failed to create items file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("["); err != nil {
		return fmt.Errorf("failed to write items file: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, item := range s.items {
		if i > 0 {
			if _, err := w.WriteString(","); err != nil {
				return fmt.Errorf("failed to write items file: %w", err)
			}
		}
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to encode item %d: %w", i, err)
		}
	}
	if _, err := w.WriteString("]"); err != nil {
		return fmt.Errorf("failed to write items file: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush items file: %w", err)
	}

	data, err := json.Marshal(s.project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := os.WriteFile(projectPath(dir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}

	s.saveRequested = false
	s.lastSave = time.Now()
	return nil
}

// Load reads items and project metadata back from dir/cache. Read errors
// are logged and leave the current in-memory state untouched.
func (s *Store) Load(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items, ok := loadJSON[[]*Item](itemsPath(dir)); ok {
		s.items = items
	}
	if project, ok := loadJSON[Project](projectPath(dir)); ok {
		s.project = project
	}
}

func loadJSON[T any](path string) (T, bool) {
	var zero T

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Failed to read cache file %s: %v", path, err)
		}
		return zero, false
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn("Failed to parse cache file %s: %v", path, err)
		return zero, false
	}
	return v, true
}

// RequestSave marks an asynchronous intent to persist to dir. The actual
// write happens on a later Flush call.
func (s *Store) RequestSave(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveRequested = true
	s.savePath = dir
}

// Flush persists the cache when a save was requested and at least
// SaveInterval has passed since the last write. The host schedules it
// periodically. Returns true when a write happened.
func (s *Store) Flush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.saveRequested || time.Since(s.lastSave) < SaveInterval {
		return false
	}
	if err := s.saveLocked(s.savePath); err != nil {
		log.Error("Autosave failed: %v", err)
		return false
	}
	return true
}
