// Package discovery crawls a project root for analyzable source files.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crossflow/internal/parser"
)

// ignoredDirs are never descended into.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
	".tox":         true,
	".mypy_cache":  true,
}

// SourceFile is one discovered file with its project-relative identity.
type SourceFile struct {
	AbsPath string
	RelPath string
	Module  string
}

// Crawl walks root and returns every file a registered parser can handle, in
// deterministic path order. An unreadable root is the only fatal error;
// unreadable subtrees are logged and skipped.
func Crawl(root string, logger *zap.Logger) ([]SourceFile, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (ignoredDirs[name] || strings.HasPrefix(name, ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := parser.ForFile(path); !ok {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, SourceFile{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Module:  parser.ModuleName(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	logger.Debug("source discovery complete", zap.String("root", root), zap.Int("files", len(files)))
	return files, nil
}
