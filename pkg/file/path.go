package file

import (
	"path/filepath"
	"strings"
)

// RelPath returns path relative to root with forward slashes, falling back
// to the cleaned input when it is not under root.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Clean(path)
	}
	return filepath.ToSlash(rel)
}

// ReplaceExt swaps the extension of path with ext, handling dotless
// filenames and extensions without a leading dot.
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}
