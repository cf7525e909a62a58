// Package crossfile composes per-function taint summaries over the module
// graph, following tainted arguments through call edges until they reach a
// sink, a sanitized boundary, or a budget.
package crossfile

import (
	"context"
	"sort"
	"time"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/modgraph"
	"github.com/xkilldash9x/crossflow/internal/syntax"
	"github.com/xkilldash9x/crossflow/internal/taint"
)

// CallInfo is one traversed call edge in a flow.
type CallInfo struct {
	FromModule   string
	FromFunction string
	CallLoc      syntax.Location
	ToModule     string
	ToFunction   string
	EdgeKind     modgraph.Kind
}

// Flow is a source-to-sink taint path, possibly spanning modules.
type Flow struct {
	Source         string
	SourceKind     catalog.Source
	Sink           catalog.Sink
	SinkPattern    string
	SinkCall       string
	Hops           []CallInfo
	SinkLoc        syntax.Location
	SourceLoc      syntax.Location
	SourceFunction string
	SinkFunction   string
	Confidence     float64
	Guards         []taint.Guard
	Consts         map[string]int64
}

// IsCrossFile reports whether the flow traverses at least one call edge.
func (f *Flow) IsCrossFile() bool { return len(f.Hops) > 0 }

// Options bound and tune a propagation run.
type Options struct {
	MaxDepth        int
	MaxModules      int
	Timeout         time.Duration
	ConfidenceDecay float64
	DecayByEdgeKind bool
	CountLazyEdges  bool
}

// DefaultOptions matches the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxDepth:        10,
		MaxModules:      500,
		Timeout:         30 * time.Second,
		ConfidenceDecay: 0.9,
		CountLazyEdges:  true,
	}
}

// Result carries the flows plus the budget outcome. Truncated is set only by
// the time and module budgets; running out of depth is a normal stop.
type Result struct {
	Flows          []Flow
	Truncated      bool
	TimedOut       bool
	ModulesVisited int
}

// Propagator walks summaries over the graph.
type Propagator struct {
	graph *modgraph.Graph
	cache *taint.Cache
	opts  Options

	deadline time.Time
	visited  map[string]bool
	result   *Result
}

func NewPropagator(g *modgraph.Graph, cache *taint.Cache, opts Options) *Propagator {
	if opts.ConfidenceDecay <= 0 || opts.ConfidenceDecay > 1 {
		opts.ConfidenceDecay = 0.9
	}
	return &Propagator{graph: g, cache: cache, opts: opts}
}

// Run propagates from every function that reads a source directly. Output
// ordering is deterministic.
func (p *Propagator) Run(ctx context.Context) *Result {
	p.result = &Result{}
	p.visited = map[string]bool{}
	p.deadline = time.Now().Add(p.opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(p.deadline) {
		p.deadline = dl
	}

	entries := p.cache.All()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key() < entries[j].Key() })

	for _, fi := range entries {
		if len(fi.SourceReads) == 0 {
			continue
		}
		if p.expired(ctx) {
			break
		}
		p.enterModule(fi.Module, modgraph.KindStatic)
		for _, read := range fi.SourceReads {
			p.fromEntry(ctx, fi, read)
		}
	}
	p.result.ModulesVisited = len(p.visited)
	sortFlows(p.result.Flows)
	return p.result
}

// path is the state owned by one traversal branch. cleared is keyed per
// carrier entry so a sanitizer on one argument never shadows a sibling
// argument's raw flow. guards and consts accumulate the conditions dominating
// every traversed call site so the pruner sees the whole chain.
type path struct {
	carrier map[string]bool
	cleared map[string]map[catalog.Sink]bool
	hops    []CallInfo
	guards  []taint.Guard
	consts  map[string]int64
	conf    float64
}

// fromEntry reports local hits for one source read, then follows outgoing
// calls carrying it.
func (p *Propagator) fromEntry(ctx context.Context, fi *taint.FunctionTaintInfo, read taint.SourceRead) {
	pt := path{
		carrier: map[string]bool{read.Pattern: true},
		cleared: map[string]map[catalog.Sink]bool{},
		conf:    1.0,
	}
	for _, hit := range fi.SinkHits {
		if liveCarrier(hit, pt.carrier, pt.cleared) {
			p.emit(fi, read, hit, pt)
		}
	}
	onPath := map[string]bool{fi.Key(): true}
	p.follow(ctx, fi, read, pt, onPath)
}

// follow expands the outgoing calls of fi whose arguments carry the current
// taint, recursing into callee summaries.
func (p *Propagator) follow(ctx context.Context, fi *taint.FunctionTaintInfo, read taint.SourceRead,
	pt path, onPath map[string]bool) {

	if len(pt.hops) >= p.opts.MaxDepth {
		// Depth exhaustion is the configured horizon, not an error.
		return
	}
	for _, call := range fi.Calls {
		if p.expired(ctx) {
			return
		}
		toModule, toFn, kind, ok := p.graph.ResolveCall(fi.Module, call.Target)
		if !ok {
			// Unresolved targets cover lazy/unknown-module edges. The
			// assume-taint-may-pass policy degrades to stopping here: with
			// no callee summary there is nothing to compose, so the path
			// ends instead of being silently dropped earlier.
			continue
		}
		callee, ok := p.cache.Get(toModule, toFn)
		if !ok || onPath[callee.Key()] {
			continue
		}

		// Each tainted parameter inherits the cleared sets of the carrier
		// keys feeding it (intersected, a sink is safe only if every feeding
		// path cleared it) plus whatever the argument expression cleared.
		nextCarrier := map[string]bool{}
		nextCleared := map[string]map[catalog.Sink]bool{}
		for i, srcs := range call.ArgSources {
			var inherited map[catalog.Sink]bool
			for k := range srcs {
				if !pt.carrier[k] {
					continue
				}
				if inherited == nil {
					inherited = cloneSinks(pt.cleared[k])
				} else {
					inherited = intersectSinks(inherited, pt.cleared[k])
				}
			}
			if inherited == nil {
				continue
			}
			for s := range call.ArgCleared[i] {
				inherited[s] = true
			}
			key := taint.ParamSource(i)
			nextCarrier[key] = true
			nextCleared[key] = inherited
		}
		if len(nextCarrier) == 0 {
			continue
		}
		if !p.enterModule(toModule, kind) {
			return
		}

		hop := CallInfo{
			FromModule:   fi.Module,
			FromFunction: fi.Name,
			CallLoc:      call.Loc,
			ToModule:     toModule,
			ToFunction:   toFn,
			EdgeKind:     kind,
		}
		next := path{
			carrier: nextCarrier,
			cleared: nextCleared,
			hops:    append(append([]CallInfo(nil), pt.hops...), hop),
			guards:  appendGuards(pt.guards, call.Guards),
			consts:  mergeConsts(pt.consts, call.Consts),
			conf:    pt.conf * p.decay(kind),
		}

		for _, hit := range callee.SinkHits {
			if liveCarrier(hit, next.carrier, next.cleared) {
				p.emit(fi, read, hit, next)
			}
		}

		onPath[callee.Key()] = true
		p.follow(ctx, callee, read, next, onPath)
		delete(onPath, callee.Key())
	}
}

// liveCarrier reports whether some carrier key reaching the hit arrives with
// the hit's sink still uncleared.
func liveCarrier(hit taint.SinkHit, carrier map[string]bool, cleared map[string]map[catalog.Sink]bool) bool {
	if hit.Taint.ClearedFor(hit.Sink) {
		return false
	}
	for k := range hit.Taint.Sources {
		if carrier[k] && !cleared[k][hit.Sink] {
			return true
		}
	}
	return false
}

// emit records one flow. With hops present the chain endpoints come from the
// hop list; at depth zero entry names both ends.
func (p *Propagator) emit(entry *taint.FunctionTaintInfo, read taint.SourceRead, hit taint.SinkHit, pt path) {

	hops := pt.hops
	sinkFn := entry.Key()
	if len(hops) > 0 {
		last := hops[len(hops)-1]
		sinkFn = last.ToModule + "." + last.ToFunction
	}
	var srcFn string
	if len(hops) > 0 {
		srcFn = hops[0].FromModule + "." + hops[0].FromFunction
	} else {
		srcFn = entry.Key()
	}

	// The flow carries every guard dominating a traversed call site plus the
	// guards around the sink call itself, so pruning sees the whole chain.
	// A local name repeated across frames keeps the deepest binding.
	guards := appendGuards(pt.guards, hit.Guards)
	consts := mergeConsts(pt.consts, hit.Consts)

	p.result.Flows = append(p.result.Flows, Flow{
		Source:         read.Pattern,
		SourceKind:     read.Kind,
		Sink:           hit.Sink,
		SinkPattern:    hit.Pattern,
		SinkCall:       hit.Call,
		Hops:           hops,
		SinkLoc:        hit.Loc,
		SourceLoc:      read.Loc,
		SourceFunction: srcFn,
		SinkFunction:   sinkFn,
		Confidence:     pt.conf,
		Guards:         guards,
		Consts:         consts,
	})
}

// enterModule charges a module against the budget; returns false once the
// budget is exhausted.
func (p *Propagator) enterModule(name string, kind modgraph.Kind) bool {
	if p.visited[name] {
		return true
	}
	charge := true
	if kind == modgraph.KindLazy && !p.opts.CountLazyEdges {
		charge = false
	}
	if charge && p.opts.MaxModules > 0 && len(p.visited) >= p.opts.MaxModules {
		p.result.Truncated = true
		return false
	}
	p.visited[name] = true
	return true
}

func (p *Propagator) expired(ctx context.Context) bool {
	if ctx.Err() != nil || time.Now().After(p.deadline) {
		p.result.Truncated = true
		p.result.TimedOut = true
		return true
	}
	return false
}

func (p *Propagator) decay(kind modgraph.Kind) float64 {
	if !p.opts.DecayByEdgeKind {
		return p.opts.ConfidenceDecay
	}
	switch kind {
	case modgraph.KindDynamic, modgraph.KindReflective:
		return p.opts.ConfidenceDecay * 0.7
	case modgraph.KindLazy, modgraph.KindWildcard:
		return p.opts.ConfidenceDecay * 0.9
	}
	return p.opts.ConfidenceDecay
}

func cloneSinks(m map[catalog.Sink]bool) map[catalog.Sink]bool {
	out := make(map[catalog.Sink]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func intersectSinks(a, b map[catalog.Sink]bool) map[catalog.Sink]bool {
	out := make(map[catalog.Sink]bool, len(a))
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func appendGuards(base, extra []taint.Guard) []taint.Guard {
	out := make([]taint.Guard, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func mergeConsts(base, extra map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func sortFlows(flows []Flow) {
	sort.Slice(flows, func(i, j int) bool {
		a, b := flows[i], flows[j]
		if a.SourceFunction != b.SourceFunction {
			return a.SourceFunction < b.SourceFunction
		}
		if a.SinkFunction != b.SinkFunction {
			return a.SinkFunction < b.SinkFunction
		}
		if a.SinkLoc.File != b.SinkLoc.File {
			return a.SinkLoc.File < b.SinkLoc.File
		}
		return a.SinkLoc.Line < b.SinkLoc.Line
	})
}
