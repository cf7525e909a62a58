package taint

import (
	"strings"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// Tracker walks one function body, tracking taint through local bindings and
// producing a FunctionTaintInfo summary. Parameters start tainted by symbolic
// "param:N" origins so callers can later substitute their own values.
type Tracker struct {
	module string
	fn     *syntax.Function

	env    map[string]*Info
	consts map[string]int64
	guards []Guard

	returnTaint *Info
	out         *FunctionTaintInfo
}

// Summarize computes the dataflow summary of fn within module.
func Summarize(module string, fn *syntax.Function) *FunctionTaintInfo {
	t := &Tracker{
		module: module,
		fn:     fn,
		env:    make(map[string]*Info),
		consts: make(map[string]int64),
		out: &FunctionTaintInfo{
			Module:        module,
			Name:          fn.Name,
			Params:        append([]string(nil), fn.Params...),
			ParamToReturn: make(map[int]bool),
			ReturnSources: make(map[string]bool),
		},
	}
	for i, p := range fn.Params {
		t.env[p] = New(ParamSource(i), catalog.SourceNone, LevelHigh)
	}
	t.walk(fn.Body)
	t.finalize()
	return t.out
}

func (t *Tracker) walk(stmts []*syntax.Node) {
	for _, s := range stmts {
		t.stmt(s)
	}
}

func (t *Tracker) stmt(n *syntax.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case syntax.KindAssign:
		t.assign(n)
	case syntax.KindIf:
		t.branch(n)
	case syntax.KindWhile:
		t.loop(n)
	case syntax.KindReturn:
		info := t.eval(n.Value)
		t.returnTaint = Merge(t.returnTaint, info)
	default:
		// Expression statement; calls still need their effects recorded.
		t.eval(n)
	}
}

func (t *Tracker) assign(n *syntax.Node) {
	info := t.eval(n.Value)
	if info != nil {
		t.env[n.Name] = info
	} else {
		delete(t.env, n.Name)
	}

	// Constant tracking feeds the reachability pruner.
	delete(t.consts, n.Name)
	if n.Value != nil {
		if v, ok := n.Value.IntValue(); ok {
			t.consts[n.Name] = v
		} else if n.Value.Kind == syntax.KindIdent {
			if v, ok := t.consts[n.Value.Name]; ok {
				t.consts[n.Name] = v
			}
		}
	}
}

// branch interprets both arms against clones of the current state and joins
// them variable by variable. A missing else arm joins against the pre-branch
// state.
func (t *Tracker) branch(n *syntax.Node) {
	baseEnv, baseConsts := t.env, t.consts

	t.env, t.consts = cloneEnv(baseEnv), cloneConsts(baseConsts)
	t.guards = append(t.guards, Guard{Cond: n.Cond})
	t.walk(n.Body)
	thenEnv, thenConsts := t.env, t.consts
	t.guards = t.guards[:len(t.guards)-1]

	t.env, t.consts = cloneEnv(baseEnv), cloneConsts(baseConsts)
	if len(n.Else) > 0 {
		t.guards = append(t.guards, Guard{Cond: n.Cond, Negated: true})
		t.walk(n.Else)
		t.guards = t.guards[:len(t.guards)-1]
	}
	elseEnv, elseConsts := t.env, t.consts

	t.env = joinEnvs(thenEnv, elseEnv)
	t.consts = joinConsts(thenConsts, elseConsts)
}

// loop interprets the body once against a clone and folds the result back in.
// One pass reaches the taint fixpoint for straight-line bodies; deeper loop
// effects are deliberately over-approximated.
func (t *Tracker) loop(n *syntax.Node) {
	baseEnv, baseConsts := t.env, t.consts

	t.env, t.consts = cloneEnv(baseEnv), cloneConsts(baseConsts)
	t.guards = append(t.guards, Guard{Cond: n.Cond})
	t.walk(n.Body)
	t.guards = t.guards[:len(t.guards)-1]

	t.env = joinEnvs(t.env, baseEnv)
	t.consts = joinConsts(t.consts, baseConsts)
}

// eval returns the taint carried by an expression, or nil when clean.
func (t *Tracker) eval(n *syntax.Node) *Info {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case syntax.KindIdent:
		return t.evalIdent(n)
	case syntax.KindLiteral:
		return nil
	case syntax.KindBinary:
		return Merge(t.eval(n.X), t.eval(n.Y))
	case syntax.KindUnary:
		return t.eval(n.X)
	case syntax.KindCall:
		return t.evalCall(n)
	}
	return nil
}

func (t *Tracker) evalIdent(n *syntax.Node) *Info {
	if info, ok := t.env[n.Name]; ok {
		return info
	}
	// An attribute of a tainted object is tainted.
	if i := strings.IndexByte(n.Name, '.'); i > 0 {
		if info, ok := t.env[n.Name[:i]]; ok {
			return info
		}
	}
	// Property reads like request.args introduce taint directly.
	if kind, pattern, ok := catalog.LookupSource(n.Name); ok {
		t.out.SourceReads = append(t.out.SourceReads, SourceRead{
			Pattern: pattern,
			Kind:    kind,
			Loc:     n.Loc,
		})
		return New(pattern, kind, LevelHigh)
	}
	return nil
}

func (t *Tracker) evalCall(n *syntax.Node) *Info {
	args := make([]*Info, len(n.Args))
	for i, a := range n.Args {
		args[i] = t.eval(a)
	}
	target := n.Name

	if kind, pattern, ok := catalog.LookupSource(target); ok {
		t.out.SourceReads = append(t.out.SourceReads, SourceRead{
			Pattern: pattern,
			Kind:    kind,
			Loc:     n.Loc,
		})
		return New(pattern, kind, LevelHigh)
	}

	if entry, pattern, ok := catalog.LookupSanitizer(target); ok {
		var merged *Info
		for _, a := range args {
			merged = Merge(merged, a)
		}
		if merged == nil {
			return nil
		}
		merged.Sanitize(pattern, entry.ClearsSet())
		return merged
	}

	if entry, pattern, ok := catalog.LookupSink(target); ok {
		t.checkSink(n, target, entry, pattern, args)
		return nil
	}

	// Unknown callee: record the site for cross-file composition and
	// assume the result carries whatever the arguments carried.
	t.recordCall(n, target, args)
	var merged *Info
	for _, a := range args {
		merged = Merge(merged, a)
	}
	return merged
}

func (t *Tracker) checkSink(n *syntax.Node, target string, entry catalog.SinkEntry, pattern string, args []*Info) {
	flagged := entry.TaintedArgs
	if flagged == nil {
		flagged = make([]int, len(args))
		for i := range args {
			flagged[i] = i
		}
	}
	var hit *Info
	for _, idx := range flagged {
		if idx >= len(args) || args[idx] == nil {
			continue
		}
		if args[idx].ClearedFor(entry.Sink) {
			continue
		}
		hit = Merge(hit, args[idx])
	}
	if hit == nil {
		return
	}
	t.out.SinkHits = append(t.out.SinkHits, SinkHit{
		Sink:    entry.Sink,
		Pattern: pattern,
		Call:    target,
		Loc:     n.Loc,
		Taint:   hit,
		Guards:  append([]Guard(nil), t.guards...),
		Consts:  cloneConsts(t.consts),
	})
}

func (t *Tracker) recordCall(n *syntax.Node, target string, args []*Info) {
	site := CallSite{
		Target:        target,
		Loc:           n.Loc,
		Guards:        append([]Guard(nil), t.guards...),
		Consts:        cloneConsts(t.consts),
		ArgSources:    make([]map[string]bool, len(args)),
		ArgCleared:    make([]map[catalog.Sink]bool, len(args)),
		ArgSanitizers: make([]map[string]bool, len(args)),
	}
	for i, a := range args {
		if a == nil {
			continue
		}
		site.ArgSources[i] = cloneSet(a.Sources)
		site.ArgCleared[i] = cloneSinkSet(a.ClearedSinks)
		site.ArgSanitizers[i] = cloneSet(a.SanitizersApplied)
	}
	t.out.Calls = append(t.out.Calls, site)
}

func (t *Tracker) finalize() {
	if t.returnTaint == nil {
		return
	}
	for src := range t.returnTaint.Sources {
		t.out.ReturnSources[src] = true
		if idx, ok := ParamIndex(src); ok {
			t.out.ParamToReturn[idx] = true
		} else {
			t.out.TaintsReturn = true
		}
	}
}

func cloneEnv(env map[string]*Info) map[string]*Info {
	out := make(map[string]*Info, len(env))
	for k, v := range env {
		out[k] = v.Clone()
	}
	return out
}

func cloneConsts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func cloneSinkSet(m map[catalog.Sink]bool) map[catalog.Sink]bool {
	out := make(map[catalog.Sink]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func joinEnvs(a, b map[string]*Info) map[string]*Info {
	out := make(map[string]*Info, len(a))
	for k, av := range a {
		out[k] = Merge(av, b[k])
	}
	for k, bv := range b {
		if _, seen := out[k]; !seen {
			out[k] = bv.Clone()
		}
	}
	return out
}

// joinConsts keeps only bindings that agree on both paths.
func joinConsts(a, b map[string]int64) map[string]int64 {
	out := make(map[string]int64)
	for k, av := range a {
		if bv, ok := b[k]; ok && av == bv {
			out[k] = av
		}
	}
	return out
}
