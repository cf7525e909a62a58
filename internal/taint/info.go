// Package taint implements the intraprocedural taint lattice and the
// per-function tracker that produces composable summaries for the cross-file
// propagator.
package taint

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// Level orders taint strength for the lattice join.
type Level uint8

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	}
	return "none"
}

// Hop is one step in a propagation trail kept for reporting.
type Hop struct {
	Module   string
	Function string
	Loc      syntax.Location
}

// Info is the taint state attached to a binding. Source holds the
// representative origin (the lexically smallest member of Sources), which
// keeps merges deterministic.
type Info struct {
	Source            string
	Sources           map[string]bool
	Level             Level
	Origin            catalog.Source
	Path              []Hop
	SanitizersApplied map[string]bool
	SanitizerHistory  []string
	ClearedSinks      map[catalog.Sink]bool
}

// New builds a fresh single-origin taint value.
func New(source string, origin catalog.Source, level Level) *Info {
	return &Info{
		Source:            source,
		Sources:           map[string]bool{source: true},
		Level:             level,
		Origin:            origin,
		SanitizersApplied: map[string]bool{},
		ClearedSinks:      map[catalog.Sink]bool{},
	}
}

// Clone deep-copies the value so branch-local updates stay branch-local.
func (t *Info) Clone() *Info {
	if t == nil {
		return nil
	}
	out := &Info{
		Source:            t.Source,
		Sources:           make(map[string]bool, len(t.Sources)),
		Level:             t.Level,
		Origin:            t.Origin,
		Path:              append([]Hop(nil), t.Path...),
		SanitizersApplied: make(map[string]bool, len(t.SanitizersApplied)),
		SanitizerHistory:  append([]string(nil), t.SanitizerHistory...),
		ClearedSinks:      make(map[catalog.Sink]bool, len(t.ClearedSinks)),
	}
	for k := range t.Sources {
		out.Sources[k] = true
	}
	for k := range t.SanitizersApplied {
		out.SanitizersApplied[k] = true
	}
	for k := range t.ClearedSinks {
		out.ClearedSinks[k] = true
	}
	return out
}

// Merge joins two taint values at a control-flow join point. Sources and the
// sanitizer history union; cleared sinks intersect, since a sink is only safe
// when every inflowing path sanitized it; the level takes the maximum. Either
// side being nil makes the other the identity.
func Merge(a, b *Info) *Info {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return a.Clone()
	}
	out := a.Clone()
	for s := range b.Sources {
		out.Sources[s] = true
	}
	if b.Level > out.Level {
		out.Level = b.Level
	}
	if b.Origin > out.Origin {
		out.Origin = b.Origin
	}
	for _, h := range b.SanitizerHistory {
		if !containsString(out.SanitizerHistory, h) {
			out.SanitizerHistory = append(out.SanitizerHistory, h)
		}
	}
	applied := make(map[string]bool)
	for k := range out.SanitizersApplied {
		if b.SanitizersApplied[k] {
			applied[k] = true
		}
	}
	out.SanitizersApplied = applied

	cleared := make(map[catalog.Sink]bool)
	for k := range out.ClearedSinks {
		if b.ClearedSinks[k] {
			cleared[k] = true
		}
	}
	out.ClearedSinks = cleared

	if len(b.Path) > len(out.Path) {
		out.Path = append([]Hop(nil), b.Path...)
	}
	out.Source = representative(out.Sources)
	return out
}

// Sanitize records a sanitizer application, clearing the listed sinks.
func (t *Info) Sanitize(pattern string, clears map[catalog.Sink]bool) {
	t.SanitizersApplied[pattern] = true
	if !containsString(t.SanitizerHistory, pattern) {
		t.SanitizerHistory = append(t.SanitizerHistory, pattern)
	}
	for s := range clears {
		t.ClearedSinks[s] = true
	}
}

// ClearedFor reports whether the value has been sanitized for a sink.
func (t *Info) ClearedFor(s catalog.Sink) bool {
	return t != nil && t.ClearedSinks[s]
}

func representative(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func containsString(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

// ParamSource builds the symbolic origin name for the i-th parameter, and
// ParamIndex inverts it.
func ParamSource(i int) string {
	return "param:" + strconv.Itoa(i)
}

// ParamIndex returns (index, true) when source names a parameter.
func ParamIndex(source string) (int, bool) {
	rest, ok := strings.CutPrefix(source, "param:")
	if !ok {
		return 0, false
	}
	n := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
