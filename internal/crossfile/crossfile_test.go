package crossfile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/modgraph"
	"github.com/xkilldash9x/crossflow/internal/syntax"
	"github.com/xkilldash9x/crossflow/internal/taint"
)

// threeModuleFixture wires web -> service -> db where web reads a request
// parameter, service forwards it, and db executes it as SQL. A sibling path
// through service.sanitized quotes the value for SQL first.
func threeModuleFixture(t *testing.T) (*modgraph.Graph, *taint.Cache) {
	t.Helper()

	web := &syntax.File{
		Path: "web.py", Module: "web", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "service"}},
		Functions: []*syntax.Function{
			syntax.Func("handler", nil,
				syntax.Assign("q", syntax.Call("request.args.get", syntax.Str("q"))),
				syntax.Call("service.forward", syntax.Ident("q")),
				syntax.Call("service.forward_safe", syntax.Ident("q")),
			),
		},
	}
	service := &syntax.File{
		Path: "service.py", Module: "service", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "db"}},
		Functions: []*syntax.Function{
			syntax.Func("forward", []string{"value"},
				syntax.Call("db.run_query", syntax.Ident("value")),
			),
			syntax.Func("forward_safe", []string{"value"},
				syntax.Assign("safe", syntax.Call("sql.Identifier", syntax.Ident("value"))),
				syntax.Call("db.run_query", syntax.Ident("safe")),
			),
		},
	}
	db := &syntax.File{
		Path: "db.py", Module: "db", Status: syntax.StatusOK,
		Functions: []*syntax.Function{
			syntax.Func("run_query", []string{"sql"},
				syntax.Call("cursor.execute", syntax.Ident("sql")),
			),
		},
	}

	g := modgraph.Build([]*syntax.File{web, service, db})
	cache := taint.NewCache()
	for _, f := range []*syntax.File{web, service, db} {
		for _, fn := range f.Functions {
			cache.Put(taint.Summarize(f.Module, fn))
		}
	}
	return g, cache
}

func TestCrossFileFlowSpansThreeModules(t *testing.T) {
	t.Parallel()

	g, cache := threeModuleFixture(t)
	res := NewPropagator(g, cache, DefaultOptions()).Run(context.Background())

	require.Len(t, res.Flows, 1, "the sanitized sibling path must be suppressed")
	flow := res.Flows[0]
	assert.Equal(t, "request.args.get", flow.Source)
	assert.Equal(t, catalog.SourceUserInput, flow.SourceKind)
	assert.Equal(t, catalog.SinkSQLExecution, flow.Sink)
	assert.Equal(t, "web.handler", flow.SourceFunction)
	assert.Equal(t, "db.run_query", flow.SinkFunction)
	assert.True(t, flow.IsCrossFile())
	require.Len(t, flow.Hops, 2)
	assert.Equal(t, "service", flow.Hops[0].ToModule)
	assert.Equal(t, "db", flow.Hops[1].ToModule)
	assert.False(t, res.Truncated)
	assert.False(t, res.TimedOut)
}

func TestConfidenceDecaysPerHop(t *testing.T) {
	t.Parallel()

	g, cache := threeModuleFixture(t)
	opts := DefaultOptions()
	opts.ConfidenceDecay = 0.9
	res := NewPropagator(g, cache, opts).Run(context.Background())

	require.Len(t, res.Flows, 1)
	assert.InDelta(t, 0.81, res.Flows[0].Confidence, 1e-9)
}

func TestDepthZeroFindsNoCrossFileFlowsWithoutTruncation(t *testing.T) {
	t.Parallel()

	g, cache := threeModuleFixture(t)
	opts := DefaultOptions()
	opts.MaxDepth = 0
	res := NewPropagator(g, cache, opts).Run(context.Background())

	for _, f := range res.Flows {
		assert.False(t, f.IsCrossFile())
	}
	assert.False(t, res.Truncated, "depth exhaustion is not truncation")
}

func TestModuleBudgetSetsTruncated(t *testing.T) {
	t.Parallel()

	g, cache := threeModuleFixture(t)
	opts := DefaultOptions()
	opts.MaxModules = 1
	res := NewPropagator(g, cache, opts).Run(context.Background())

	assert.True(t, res.Truncated)
	assert.Empty(t, res.Flows)
}

func TestTimeoutSetsTimedOutAndTruncated(t *testing.T) {
	t.Parallel()

	g, cache := threeModuleFixture(t)
	opts := DefaultOptions()
	opts.Timeout = -time.Second
	res := NewPropagator(g, cache, opts).Run(context.Background())

	assert.True(t, res.TimedOut)
	assert.True(t, res.Truncated)
}

func TestLocalFlowWithinSingleFunction(t *testing.T) {
	t.Parallel()

	f := &syntax.File{
		Path: "app.py", Module: "app", Status: syntax.StatusOK,
		Functions: []*syntax.Function{
			syntax.Func("run", nil,
				syntax.Assign("cmd", syntax.Call("request.args.get", syntax.Str("cmd"))),
				syntax.Call("os.system", syntax.Ident("cmd")),
			),
		},
	}
	g := modgraph.Build([]*syntax.File{f})
	cache := taint.NewCache()
	cache.Put(taint.Summarize("app", f.Functions[0]))

	res := NewPropagator(g, cache, DefaultOptions()).Run(context.Background())
	require.Len(t, res.Flows, 1)
	flow := res.Flows[0]
	assert.False(t, flow.IsCrossFile())
	assert.Equal(t, catalog.SinkShellExecution, flow.Sink)
	assert.Equal(t, "app.run", flow.SourceFunction)
	assert.Equal(t, "app.run", flow.SinkFunction)
	assert.Equal(t, 1.0, flow.Confidence)
}

func TestImportCycleTerminates(t *testing.T) {
	t.Parallel()

	a := &syntax.File{
		Path: "a.py", Module: "a", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "b"}},
		Functions: []*syntax.Function{
			syntax.Func("entry", nil,
				syntax.Assign("v", syntax.Call("request.args.get", syntax.Str("v"))),
				syntax.Call("b.bounce", syntax.Ident("v")),
			),
			syntax.Func("rebound", []string{"v"},
				syntax.Call("b.bounce", syntax.Ident("v")),
			),
		},
	}
	b := &syntax.File{
		Path: "b.py", Module: "b", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "a"}},
		Functions: []*syntax.Function{
			syntax.Func("bounce", []string{"v"},
				syntax.Call("a.rebound", syntax.Ident("v")),
			),
		},
	}
	g := modgraph.Build([]*syntax.File{a, b})
	cache := taint.NewCache()
	for _, f := range []*syntax.File{a, b} {
		for _, fn := range f.Functions {
			cache.Put(taint.Summarize(f.Module, fn))
		}
	}

	done := make(chan *Result, 1)
	go func() {
		done <- NewPropagator(g, cache, DefaultOptions()).Run(context.Background())
	}()
	select {
	case res := <-done:
		assert.NotNil(t, res)
	case <-time.After(5 * time.Second):
		t.Fatal("propagation did not terminate on an import cycle")
	}
}

func TestDecayByEdgeKindPenalizesDynamicEdges(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.DecayByEdgeKind = true
	p := NewPropagator(nil, taint.NewCache(), opts)

	assert.InDelta(t, 0.9, p.decay(modgraph.KindStatic), 1e-9)
	assert.InDelta(t, 0.9*0.7, p.decay(modgraph.KindDynamic), 1e-9)
	assert.InDelta(t, 0.9*0.9, p.decay(modgraph.KindLazy), 1e-9)
}

func TestSanitizedArgumentDoesNotShadowRawSibling(t *testing.T) {
	t.Parallel()

	web := &syntax.File{
		Path: "web.py", Module: "web", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "db"}},
		Functions: []*syntax.Function{
			syntax.Func("handler", nil,
				syntax.Assign("q", syntax.Call("request.args.get", syntax.Str("q"))),
				syntax.Assign("safe", syntax.Call("sql.Identifier", syntax.Ident("q"))),
				syntax.Call("db.run_pair", syntax.Ident("safe"), syntax.Ident("q")),
			),
		},
	}
	db := &syntax.File{
		Path: "db.py", Module: "db", Status: syntax.StatusOK,
		Functions: []*syntax.Function{
			syntax.Func("run_pair", []string{"ident", "raw"},
				syntax.Call("cursor.execute", syntax.Ident("raw")),
			),
		},
	}
	g := modgraph.Build([]*syntax.File{web, db})
	cache := taint.NewCache()
	for _, f := range []*syntax.File{web, db} {
		for _, fn := range f.Functions {
			cache.Put(taint.Summarize(f.Module, fn))
		}
	}

	res := NewPropagator(g, cache, DefaultOptions()).Run(context.Background())

	require.Len(t, res.Flows, 1, "the raw second argument must keep its flow")
	flow := res.Flows[0]
	assert.Equal(t, catalog.SinkSQLExecution, flow.Sink)
	assert.Equal(t, "db.run_pair", flow.SinkFunction)
}

func TestSanitizedArgumentAloneStaysSuppressed(t *testing.T) {
	t.Parallel()

	web := &syntax.File{
		Path: "web.py", Module: "web", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "db"}},
		Functions: []*syntax.Function{
			syntax.Func("handler", nil,
				syntax.Assign("q", syntax.Call("request.args.get", syntax.Str("q"))),
				syntax.Assign("safe", syntax.Call("sql.Identifier", syntax.Ident("q"))),
				syntax.Call("db.run_one", syntax.Ident("safe")),
			),
		},
	}
	db := &syntax.File{
		Path: "db.py", Module: "db", Status: syntax.StatusOK,
		Functions: []*syntax.Function{
			syntax.Func("run_one", []string{"ident"},
				syntax.Call("cursor.execute", syntax.Ident("ident")),
			),
		},
	}
	g := modgraph.Build([]*syntax.File{web, db})
	cache := taint.NewCache()
	for _, f := range []*syntax.File{web, db} {
		for _, fn := range f.Functions {
			cache.Put(taint.Summarize(f.Module, fn))
		}
	}

	res := NewPropagator(g, cache, DefaultOptions()).Run(context.Background())
	assert.Empty(t, res.Flows)
}

func TestFlowCarriesCallSiteGuardsAndConsts(t *testing.T) {
	t.Parallel()

	web := &syntax.File{
		Path: "web.py", Module: "web", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "db"}},
		Functions: []*syntax.Function{
			syntax.Func("handler", nil,
				syntax.Assign("q", syntax.Call("request.args.get", syntax.Str("q"))),
				syntax.Assign("flag", syntax.Int(5)),
				syntax.If(syntax.Bin(">", syntax.Ident("flag"), syntax.Int(10)),
					[]*syntax.Node{syntax.Call("db.run_query", syntax.Ident("q"))},
				),
			),
		},
	}
	db := &syntax.File{
		Path: "db.py", Module: "db", Status: syntax.StatusOK,
		Functions: []*syntax.Function{
			syntax.Func("run_query", []string{"sql"},
				syntax.Call("cursor.execute", syntax.Ident("sql")),
			),
		},
	}
	g := modgraph.Build([]*syntax.File{web, db})
	cache := taint.NewCache()
	for _, f := range []*syntax.File{web, db} {
		for _, fn := range f.Functions {
			cache.Put(taint.Summarize(f.Module, fn))
		}
	}

	res := NewPropagator(g, cache, DefaultOptions()).Run(context.Background())

	require.Len(t, res.Flows, 1)
	flow := res.Flows[0]
	require.Len(t, flow.Guards, 1, "the caller's dominating guard must travel with the flow")
	assert.Equal(t, "flag > 10", flow.Guards[0].String())
	assert.Equal(t, int64(5), flow.Consts["flag"])
}

func TestLiteralFalseCallSiteGuardReachesFlow(t *testing.T) {
	t.Parallel()

	web := &syntax.File{
		Path: "web.py", Module: "web", Status: syntax.StatusOK,
		Imports: []syntax.Import{{Name: "db"}},
		Functions: []*syntax.Function{
			syntax.Func("handler", nil,
				syntax.Assign("q", syntax.Call("request.args.get", syntax.Str("q"))),
				syntax.If(syntax.Bool(false),
					[]*syntax.Node{syntax.Call("db.run_query", syntax.Ident("q"))},
				),
			),
		},
	}
	db := &syntax.File{
		Path: "db.py", Module: "db", Status: syntax.StatusOK,
		Functions: []*syntax.Function{
			syntax.Func("run_query", []string{"sql"},
				syntax.Call("cursor.execute", syntax.Ident("sql")),
			),
		},
	}
	g := modgraph.Build([]*syntax.File{web, db})
	cache := taint.NewCache()
	for _, f := range []*syntax.File{web, db} {
		for _, fn := range f.Functions {
			cache.Put(taint.Summarize(f.Module, fn))
		}
	}

	res := NewPropagator(g, cache, DefaultOptions()).Run(context.Background())

	require.Len(t, res.Flows, 1)
	require.Len(t, res.Flows[0].Guards, 1)
	value, ok := res.Flows[0].Guards[0].Cond.IsLiteralBool()
	require.True(t, ok)
	assert.False(t, value)
	assert.False(t, res.Flows[0].Guards[0].Negated)
}
