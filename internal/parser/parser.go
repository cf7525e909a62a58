// Package parser lowers source files to the normalized syntax tree the
// analysis works on. Each language front end wraps a tree-sitter grammar and
// keeps only the constructs taint tracking needs; everything else is dropped
// during lowering.
package parser

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// Parser is one language front end.
type Parser interface {
	// Parse lowers src into a normalized file. Syntax errors are reported
	// through File.Status, not the error return, so broken files degrade
	// instead of failing the run.
	Parse(ctx context.Context, path, module string, src []byte) (*syntax.File, error)
	Extensions() []string
}

var registry = map[string]Parser{}

func register(p Parser) {
	for _, ext := range p.Extensions() {
		registry[ext] = p
	}
}

func init() {
	register(NewPython())
	register(NewJavaScript())
}

// ForFile returns the front end responsible for a path, if any.
func ForFile(path string) (Parser, bool) {
	p, ok := registry[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// SupportedExtensions lists every registered extension.
func SupportedExtensions() []string {
	out := make([]string, 0, len(registry))
	for ext := range registry {
		out = append(out, ext)
	}
	return out
}

// ModuleName derives the dotted module name from a path relative to the
// project root: pkg/web/views.py becomes pkg.web.views.
func ModuleName(relPath string) string {
	p := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	p = filepath.ToSlash(p)
	p = strings.TrimSuffix(p, "/__init__")
	p = strings.TrimSuffix(p, "/index")
	return strings.ReplaceAll(p, "/", ".")
}

func loc(row, col uint32, file string) syntax.Location {
	return syntax.Location{File: file, Line: int(row) + 1, Column: int(col)}
}
