package taint

import (
	"sync"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// Guard is one branch condition that dominated a statement, recorded for the
// reachability pruner. Negated marks the else arm.
type Guard struct {
	Cond    *syntax.Node
	Negated bool
}

func (g Guard) String() string {
	if g.Negated {
		return "not (" + g.Cond.String() + ")"
	}
	return g.Cond.String()
}

// SinkHit records tainted data reaching a dangerous call inside one function.
type SinkHit struct {
	Sink    catalog.Sink
	Pattern string
	Call    string
	Loc     syntax.Location
	Taint   *Info
	Guards  []Guard
	Consts  map[string]int64
}

// SourceRead records a function observing a catalog source directly.
type SourceRead struct {
	Pattern string
	Kind    catalog.Source
	Loc     syntax.Location
}

// CallSite records an outgoing call with per-argument taint provenance so the
// propagator can compose summaries without revisiting bodies.
type CallSite struct {
	Target        string
	Loc           syntax.Location
	Guards        []Guard
	Consts        map[string]int64
	ArgSources    []map[string]bool
	ArgCleared    []map[catalog.Sink]bool
	ArgSanitizers []map[string]bool
}

// FunctionTaintInfo is the reusable dataflow summary of one function.
type FunctionTaintInfo struct {
	Module        string
	Name          string
	Params        []string
	ParamToReturn map[int]bool
	TaintsReturn  bool
	ReturnSources map[string]bool
	SourceReads   []SourceRead
	SinkHits      []SinkHit
	Calls         []CallSite
}

// Key identifies the summary in the cache.
func (f *FunctionTaintInfo) Key() string {
	return f.Module + "." + f.Name
}

// Cache holds computed summaries keyed by module-qualified function name.
// Writes are first-wins so concurrent summarizers agree on one value.
type Cache struct {
	mu sync.RWMutex
	m  map[string]*FunctionTaintInfo
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]*FunctionTaintInfo)}
}

func (c *Cache) Get(module, name string) (*FunctionTaintInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fi, ok := c.m[module+"."+name]
	return fi, ok
}

func (c *Cache) Put(fi *FunctionTaintInfo) *FunctionTaintInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.m[fi.Key()]; ok {
		return prev
	}
	c.m[fi.Key()] = fi
	return fi
}

// All returns every cached summary; order is unspecified.
func (c *Cache) All() []*FunctionTaintInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*FunctionTaintInfo, 0, len(c.m))
	for _, fi := range c.m {
		out = append(out, fi)
	}
	return out
}

// Len reports the number of cached summaries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
