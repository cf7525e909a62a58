// Package modgraph builds the module import graph from parsed files and
// resolves qualified call targets across it. Modules are keyed by their
// dotted name derived from the file path relative to the project root.
package modgraph

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// UnknownModule is the sentinel target for imports whose destination cannot
// be determined statically (computed dynamic imports, reflection with
// non-literal names).
const UnknownModule = "<unknown>"

// Kind classifies how one module reaches another.
type Kind uint8

const (
	KindStatic Kind = iota
	KindRelative
	KindAliased
	KindWildcard
	KindLazy
	KindDynamic
	KindReflective
)

func (k Kind) String() string {
	switch k {
	case KindRelative:
		return "relative"
	case KindAliased:
		return "aliased"
	case KindWildcard:
		return "wildcard"
	case KindLazy:
		return "lazy"
	case KindDynamic:
		return "dynamic"
	case KindReflective:
		return "reflective"
	}
	return "static"
}

// Edge is one import relationship.
type Edge struct {
	From     string
	Imported string
	Resolved string
	Kind     Kind
	Alias    string
	InGraph  bool
	Loc      syntax.Location
}

// Module wraps a parsed file with its function table.
type Module struct {
	Name      string
	Path      string
	File      *syntax.File
	Functions map[string]*syntax.Function
}

// binding resolves the first segment of a local call path to a module and
// optionally a specific object in it (from-imports).
type binding struct {
	module string
	object string
	kind   Kind
}

// Graph holds all modules, all edges, and per-module name bindings.
type Graph struct {
	Modules  map[string]*Module
	Edges    []Edge
	bindings map[string]map[string]binding
	wildcard map[string][]string
}

// Build assembles the graph from parsed files. Files with syntax errors keep
// their module entry so partial results stay addressable, but contribute no
// functions.
func Build(files []*syntax.File) *Graph {
	g := &Graph{
		Modules:  make(map[string]*Module, len(files)),
		bindings: make(map[string]map[string]binding),
		wildcard: make(map[string][]string),
	}
	for _, f := range files {
		m := &Module{
			Name:      f.Module,
			Path:      f.Path,
			File:      f,
			Functions: make(map[string]*syntax.Function, len(f.Functions)),
		}
		if f.Status == syntax.StatusOK {
			for _, fn := range f.Functions {
				m.Functions[fn.Name] = fn
			}
		}
		g.Modules[f.Module] = m
	}
	for _, f := range files {
		g.bindings[f.Module] = make(map[string]binding)
		for _, imp := range f.Imports {
			g.addImport(f.Module, imp)
		}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].Imported < g.Edges[j].Imported
	})
	return g
}

func (g *Graph) addImport(from string, imp syntax.Import) {
	kind := classify(imp)
	target := imp.Name
	if imp.Dots > 0 {
		target = resolveRelative(from, imp.Dots, imp.Name)
	}
	if target == "" && (imp.Dynamic || imp.Reflective) {
		target = UnknownModule
	}
	_, inGraph := g.Modules[target]

	g.Edges = append(g.Edges, Edge{
		From:     from,
		Imported: imp.Name,
		Resolved: target,
		Kind:     kind,
		Alias:    imp.Alias,
		InGraph:  inGraph,
		Loc:      imp.Loc,
	})
	if target == UnknownModule {
		return
	}

	switch {
	case imp.Wildcard:
		g.wildcard[from] = append(g.wildcard[from], target)
	case imp.From != "":
		// from <target> import <From> [as alias]: binds an object.
		name := imp.From
		if imp.Alias != "" {
			name = imp.Alias
		}
		g.bindings[from][name] = binding{module: target, object: imp.From, kind: kind}
	default:
		// import <target> [as alias]: binds the module itself under its
		// alias or its first segment.
		name := imp.Alias
		if name == "" {
			name = firstSegment(target)
		}
		g.bindings[from][name] = binding{module: target, kind: kind}
	}
}

func classify(imp syntax.Import) Kind {
	switch {
	case imp.Reflective:
		return KindReflective
	case imp.Dynamic:
		return KindDynamic
	case imp.Conditional:
		return KindLazy
	case imp.Wildcard:
		return KindWildcard
	case imp.Dots > 0:
		return KindRelative
	case imp.Alias != "":
		return KindAliased
	}
	return KindStatic
}

// resolveRelative maps "from ..sub import x" in pkg.a.b onto pkg.sub. One dot
// addresses the current package.
func resolveRelative(from string, dots int, name string) string {
	segs := strings.Split(from, ".")
	up := dots
	if up > len(segs) {
		up = len(segs)
	}
	base := segs[:len(segs)-up]
	if name != "" {
		base = append(base, strings.Split(name, ".")...)
	}
	if len(base) == 0 {
		return UnknownModule
	}
	return strings.Join(base, ".")
}

// ResolveCall maps a qualified call target written inside fromModule to the
// module and function that define it. Locals win over imports; wildcard
// imports are consulted last.
func (g *Graph) ResolveCall(fromModule, target string) (string, string, Kind, bool) {
	mod, ok := g.Modules[fromModule]
	if !ok {
		return "", "", KindStatic, false
	}
	head, rest := splitHead(target)

	if rest == "" {
		if _, ok := mod.Functions[head]; ok {
			return fromModule, head, KindStatic, true
		}
	}

	if b, ok := g.bindings[fromModule][head]; ok {
		if b.object != "" {
			// from m import f: the binding itself is the callee. An
			// attribute path below it stays within the object.
			if _, exists := g.fn(b.module, b.object); exists {
				return b.module, b.object, b.kind, true
			}
			return "", "", b.kind, false
		}
		if rest != "" {
			if _, exists := g.fn(b.module, rest); exists {
				return b.module, rest, b.kind, true
			}
			// import pkg.helpers binds "pkg", but the call target keeps the
			// module's full dotted path; strip it before the function name.
			if strings.HasPrefix(target, b.module+".") {
				fname := target[len(b.module)+1:]
				if _, exists := g.fn(b.module, fname); exists {
					return b.module, fname, b.kind, true
				}
			}
		}
	}

	if rest == "" {
		for _, wm := range g.wildcard[fromModule] {
			if _, exists := g.fn(wm, head); exists {
				return wm, head, KindWildcard, true
			}
		}
	}

	// Dotted plain imports (import pkg.helpers) leave the full path in the
	// call target; match the longest module prefix.
	if i := strings.LastIndexByte(target, '.'); i > 0 {
		prefix, fname := target[:i], target[i+1:]
		if _, ok := g.Modules[prefix]; ok {
			if _, exists := g.fn(prefix, fname); exists {
				return prefix, fname, KindStatic, true
			}
		}
	}
	return "", "", KindStatic, false
}

func (g *Graph) fn(module, name string) (*syntax.Function, bool) {
	m, ok := g.Modules[module]
	if !ok {
		return nil, false
	}
	f, ok := m.Functions[name]
	return f, ok
}

// Cycles returns every import cycle found by depth-first search, each as the
// ordered module names forming the loop. Only in-graph static edges
// participate.
func (g *Graph) Cycles() [][]string {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		if e.InGraph {
			adj[e.From] = append(adj[e.From], e.Resolved)
		}
	}
	names := make([]string, 0, len(g.Modules))
	for n := range g.Modules {
		names = append(names, n)
	}
	sort.Strings(names)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string
	var cycles [][]string

	var visit func(n string)
	visit = func(n string) {
		color[n] = gray
		stack = append(stack, n)
		next := append([]string(nil), adj[n]...)
		sort.Strings(next)
		for _, m := range next {
			switch color[m] {
			case white:
				visit(m)
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == m {
						cycles = append(cycles, append([]string(nil), stack[i:]...))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}
	for _, n := range names {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// ModuleNames returns the sorted module list.
func (g *Graph) ModuleNames() []string {
	names := make([]string, 0, len(g.Modules))
	for n := range g.Modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func firstSegment(s string) string {
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

func splitHead(s string) (string, string) {
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
