package file

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FindByExt walks dir recursively and returns all files with the given
// extension (compared case-insensitively), sorted by walk order.
func FindByExt(dir, ext string) ([]string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			found = append(found, path)
		}
		return nil
	})

	return found, err
}
