package archive

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Dclef/renpybox-sub001/pkg/log"
)

// rpa wraps an external rpatool binary for Ren'Py archive pack/unpack.
// A missing binary is a hard setup error surfaced to the caller.
type rpa struct {
	toolCmd string
}

func NewRpa(toolPath string) rpa {
	if toolPath == "" {
		toolPath = "rpatool"
	}
	return rpa{toolCmd: toolPath}
}

// Unpack extracts archivePath into toDir, creating it if needed.
func (r rpa) Unpack(archivePath, toDir string) error {
	cmdPath, err := exec.LookPath(r.toolCmd)
	if err != nil {
		return fmt.Errorf("rpatool not found: %w", err)
	}
	if err := os.MkdirAll(toDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.Command(cmdPath, "-x", filepath.Clean(archivePath), "-o", filepath.Clean(toDir))
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("rpatool unpack failed: %v: %s", err, output)
		return fmt.Errorf("unpack %s: %w", filepath.Base(archivePath), err)
	}
	return nil
}

// Pack builds archivePath from every file under fromDir.
func (r rpa) Pack(fromDir, archivePath string) error {
	cmdPath, err := exec.LookPath(r.toolCmd)
	if err != nil {
		return fmt.Errorf("rpatool not found: %w", err)
	}
	entries, err := collectFiles(fromDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("nothing to pack under %s", fromDir)
	}

	args := append([]string{"-c", filepath.Clean(archivePath)}, entries...)
	cmd := exec.Command(cmdPath, args...)
	cmd.Dir = fromDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("rpatool pack failed: %v: %s", err, output)
		return fmt.Errorf("pack %s: %w", filepath.Base(archivePath), err)
	}
	log.Info("packed %d files into %s", len(entries), archivePath)
	return nil
}

// List returns the member paths inside an archive.
func (r rpa) List(archivePath string) ([]string, error) {
	cmdPath, err := exec.LookPath(r.toolCmd)
	if err != nil {
		return nil, fmt.Errorf("rpatool not found: %w", err)
	}
	cmd := exec.Command(cmdPath, "-l", filepath.Clean(archivePath))
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", filepath.Base(archivePath), err)
	}
	return splitNonEmptyLines(string(output)), nil
}

// collectFiles yields paths relative to root, so the archive keeps the
// directory layout the game expects.
func collectFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return out, nil
}
