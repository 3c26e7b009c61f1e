// Package scanner finds ingestible files under a directory tree.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Filter reports whether a file can be ingested.
// *extract.Registry satisfies it.
type Filter interface {
	Supports(mimeType, filename string) bool
}

// ScannedFile represents a supported file found during scanning.
type ScannedFile struct {
	RelPath string // Relative path from the scan root, slash separated (e.g., "guides/setup.md")
	Folder  string // Folder part of RelPath, "" for root-level files
	AbsPath string // Path usable with os.Open
}

// Scan walks root and returns every file filter accepts, sorted by RelPath.
// Hidden files and directories (".git", ".obsidian", ...) are skipped.
func Scan(ctx context.Context, root string, filter Filter) ([]ScannedFile, error) {
	var scannedFiles []ScannedFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if !filter.Supports("", name) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		relPath = filepath.ToSlash(relPath)

		folder := filepath.ToSlash(filepath.Dir(relPath))
		if folder == "." {
			folder = ""
		}

		scannedFiles = append(scannedFiles, ScannedFile{
			RelPath: relPath,
			Folder:  folder,
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		return scannedFiles, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(scannedFiles, func(i, j int) bool {
		return scannedFiles[i].RelPath < scannedFiles[j].RelPath
	})
	return scannedFiles, nil
}
