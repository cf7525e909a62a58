// Package engine orchestrates the full analysis pipeline: discovery, parsing,
// graph construction, summarization, cross-file propagation, reachability
// pruning, and report assembly.
package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/config"
	"github.com/xkilldash9x/crossflow/internal/crossfile"
	"github.com/xkilldash9x/crossflow/internal/discovery"
	"github.com/xkilldash9x/crossflow/internal/modgraph"
	"github.com/xkilldash9x/crossflow/internal/parser"
	"github.com/xkilldash9x/crossflow/internal/reach"
	"github.com/xkilldash9x/crossflow/internal/reporting"
	"github.com/xkilldash9x/crossflow/internal/syntax"
	"github.com/xkilldash9x/crossflow/internal/taint"
)

// Result is the complete outcome of one analysis run.
type Result struct {
	Success         bool
	RunID           string
	Report          *reporting.Report
	Flows           []crossfile.Flow
	Graph           *modgraph.Graph
	ModulesAnalyzed int
	Truncated       bool
	TimedOut        bool
	PrunedFlows     int
	Errors          []string
	Duration        time.Duration
}

// Engine runs analyses. A single Engine is safe to reuse across runs.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger.Named("engine")}
}

// Analyze runs the pipeline over a project root. Per-file parse failures
// degrade into Result.Errors; only an unusable root or a failing catalog
// extension aborts the run.
func (e *Engine) Analyze(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := e.logger.With(zap.String("run_id", res.RunID), zap.String("root", root))
	log.Info("analysis started")

	if e.cfg.Analysis.Catalog != "" {
		if err := catalog.LoadExtension(e.cfg.Analysis.Catalog); err != nil {
			return nil, fmt.Errorf("loading catalog extension: %w", err)
		}
	}

	sources, err := discovery.Crawl(root, log)
	if err != nil {
		return nil, err
	}

	files, parseErrs := e.parseAll(ctx, sources)
	res.Errors = append(res.Errors, parseErrs...)

	graph := modgraph.Build(files)
	res.Graph = graph
	if cycles := graph.Cycles(); len(cycles) > 0 {
		log.Debug("import cycles detected", zap.Int("count", len(cycles)))
	}

	cache := e.summarizeAll(ctx, graph)

	prop := crossfile.NewPropagator(graph, cache, crossfile.Options{
		MaxDepth:        e.cfg.Analysis.MaxDepth,
		MaxModules:      e.cfg.Analysis.MaxModules,
		Timeout:         e.cfg.Analysis.Timeout,
		ConfidenceDecay: e.cfg.Analysis.ConfidenceDecay,
		DecayByEdgeKind: e.cfg.Analysis.DecayByEdgeKind,
		CountLazyEdges:  e.cfg.Analysis.CountLazyEdges,
	})
	propRes := prop.Run(ctx)

	flows, pruned := e.pruneFlows(propRes.Flows)
	res.Flows = flows
	res.PrunedFlows = pruned
	res.Truncated = propRes.Truncated
	res.TimedOut = propRes.TimedOut
	res.ModulesAnalyzed = len(graph.Modules)
	res.Duration = time.Since(start)
	res.Success = true

	builder := reporting.NewBuilder(log)
	res.Report = &reporting.Report{
		RunID:           res.RunID,
		Tool:            reporting.ToolName,
		CatalogVersion:  catalog.Version,
		GeneratedAt:     time.Now().UTC(),
		Success:         res.Success,
		Truncated:       res.Truncated,
		TimedOut:        res.TimedOut,
		ModulesAnalyzed: res.ModulesAnalyzed,
		Duration:        res.Duration,
		Errors:          res.Errors,
		Vulnerabilities: builder.Build(flows),
	}

	log.Info("analysis finished",
		zap.Int("modules", res.ModulesAnalyzed),
		zap.Int("flows", len(flows)),
		zap.Int("pruned", pruned),
		zap.Int("vulnerabilities", len(res.Report.Vulnerabilities)),
		zap.Bool("truncated", res.Truncated),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// parseAll lowers every discovered file concurrently, bounded by the worker
// budget. A file that cannot be read or lowered still yields a placeholder
// entry so its module name stays visible in the graph.
func (e *Engine) parseAll(ctx context.Context, sources []discovery.SourceFile) ([]*syntax.File, []string) {
	files := make([]*syntax.File, len(sources))
	var mu sync.Mutex
	var errs []string
	record := func(rel, msg string) {
		mu.Lock()
		errs = append(errs, fmt.Sprintf("%s: %s", rel, msg))
		mu.Unlock()
	}

	sem := semaphore.NewWeighted(int64(e.workers()))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		i, src := i, src
		g.Go(func() error {
			defer sem.Release(1)
			p, ok := parser.ForFile(src.AbsPath)
			if !ok {
				return nil
			}
			raw, err := os.ReadFile(src.AbsPath)
			if err != nil {
				record(src.RelPath, err.Error())
				files[i] = &syntax.File{Path: src.RelPath, Module: src.Module, Status: syntax.StatusSkipped, Err: err.Error()}
				return nil
			}
			f, err := p.Parse(gctx, src.RelPath, src.Module, raw)
			if err != nil {
				record(src.RelPath, err.Error())
				files[i] = &syntax.File{Path: src.RelPath, Module: src.Module, Status: syntax.StatusSkipped, Err: err.Error()}
				return nil
			}
			if f.Status == syntax.StatusSyntaxError {
				record(src.RelPath, f.Err)
			}
			files[i] = f
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*syntax.File, 0, len(files))
	for _, f := range files {
		if f != nil {
			out = append(out, f)
		}
	}
	sort.Strings(errs)
	return out, errs
}

// summarizeAll computes per-function summaries concurrently. Summaries are
// independent, so the cache contents do not depend on scheduling order.
func (e *Engine) summarizeAll(ctx context.Context, graph *modgraph.Graph) *taint.Cache {
	cache := taint.NewCache()
	sem := semaphore.NewWeighted(int64(e.workers()))
	g, gctx := errgroup.WithContext(ctx)

	for _, name := range graph.ModuleNames() {
		mod := graph.Modules[name]
		for _, fn := range mod.Functions {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			fn := fn
			g.Go(func() error {
				defer sem.Release(1)
				cache.Put(taint.Summarize(mod.Name, fn))
				return nil
			})
		}
	}
	_ = g.Wait()
	e.logger.Debug("summaries computed", zap.Int("functions", cache.Len()))
	return cache
}

// pruneFlows drops flows whose dominating guards are provably contradictory.
// Unknown verdicts keep the flow.
func (e *Engine) pruneFlows(flows []crossfile.Flow) ([]crossfile.Flow, int) {
	pruner := reach.New(e.cfg.Solver.Timeout)
	kept := make([]crossfile.Flow, 0, len(flows))
	pruned := 0
	for _, f := range flows {
		if pruner.Check(f.Guards, f.Consts) == reach.Unsatisfiable {
			pruned++
			e.logger.Debug("flow pruned as unreachable",
				zap.String("sink", f.SinkFunction),
				zap.String("at", f.SinkLoc.String()))
			continue
		}
		kept = append(kept, f)
	}
	return kept, pruned
}

func (e *Engine) workers() int {
	if e.cfg.Analysis.Workers > 0 {
		return e.cfg.Analysis.Workers
	}
	return runtime.NumCPU()
}
