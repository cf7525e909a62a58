// Package reporting turns propagated taint flows into deduplicated,
// severity-rated findings and renders them as JSON or SARIF 2.1.0.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crossflow/internal/catalog"
	"github.com/xkilldash9x/crossflow/internal/crossfile"
	"github.com/xkilldash9x/crossflow/internal/reporting/sarif"
	"github.com/xkilldash9x/crossflow/internal/syntax"
)

const (
	ToolName     = "crossflow"
	ToolInfoURI  = "https://github.com/xkilldash9x/crossflow"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// Vulnerability is one reportable finding.
type Vulnerability struct {
	ID             string          `json:"id"`
	CWE            string          `json:"cwe"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Sink           string          `json:"sink"`
	SinkCall       string          `json:"sink_call"`
	Severity       string          `json:"severity"`
	Confidence     float64         `json:"confidence"`
	Source         string          `json:"source"`
	SourceKind     string          `json:"source_kind"`
	SourceFunction string          `json:"source_function"`
	SinkFunction   string          `json:"sink_function"`
	CrossFile      bool            `json:"cross_file"`
	Location       syntax.Location `json:"location"`
	FlowPath       []string        `json:"flow_path,omitempty"`
	Guards         []string        `json:"guards,omitempty"`
}

// Report is the top-level output document.
type Report struct {
	RunID           string          `json:"run_id"`
	Tool            string          `json:"tool"`
	CatalogVersion  string          `json:"catalog_version"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Success         bool            `json:"success"`
	Truncated       bool            `json:"truncated"`
	TimedOut        bool            `json:"timed_out"`
	ModulesAnalyzed int             `json:"modules_analyzed"`
	Duration        time.Duration   `json:"duration_ns"`
	Errors          []string        `json:"errors,omitempty"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Builder assembles vulnerabilities from flows.
type Builder struct {
	logger *zap.Logger
	cwe    CWEProvider
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger, cwe: NewInMemoryCWEProvider()}
}

// Build deduplicates flows by their source/sink endpoints and sink location,
// keeping the highest-confidence representative, and rates each survivor.
func (b *Builder) Build(flows []crossfile.Flow) []Vulnerability {
	best := make(map[string]crossfile.Flow)
	var order []string
	for _, f := range flows {
		key := f.SourceFunction + "|" + f.SinkFunction + "|" + f.SinkLoc.String() + "|" + f.Sink.String()
		prev, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = f
			continue
		}
		if f.Confidence > prev.Confidence {
			best[key] = f
		}
	}
	sort.Strings(order)

	out := make([]Vulnerability, 0, len(order))
	for i, key := range order {
		f := best[key]
		entry, _ := b.cwe.GetCWE(f.Sink.CWE())
		v := Vulnerability{
			ID:             fmt.Sprintf("CF-%04d", i+1),
			CWE:            f.Sink.CWE(),
			Title:          entry.Name,
			Description:    describe(f),
			Sink:           f.Sink.String(),
			SinkCall:       f.SinkCall,
			Severity:       string(rate(f.Sink.BaseSeverity(), f.Confidence)),
			Confidence:     f.Confidence,
			Source:         f.Source,
			SourceKind:     f.SourceKind.String(),
			SourceFunction: f.SourceFunction,
			SinkFunction:   f.SinkFunction,
			CrossFile:      f.IsCrossFile(),
			Location:       f.SinkLoc,
			FlowPath:       renderPath(f),
		}
		for _, g := range f.Guards {
			v.Guards = append(v.Guards, g.String())
		}
		out = append(out, v)
	}
	b.logger.Debug("report assembled",
		zap.Int("flows", len(flows)),
		zap.Int("vulnerabilities", len(out)))
	return out
}

// rate demotes the sink's base severity as confidence drops.
func rate(base catalog.Severity, confidence float64) catalog.Severity {
	steps := 0
	switch {
	case confidence < 0.5:
		steps = 2
	case confidence < 0.8:
		steps = 1
	}
	order := []catalog.Severity{catalog.SeverityCritical, catalog.SeverityHigh, catalog.SeverityMedium, catalog.SeverityLow}
	for i, s := range order {
		if s == base {
			i += steps
			if i >= len(order) {
				i = len(order) - 1
			}
			return order[i]
		}
	}
	return base
}

func describe(f crossfile.Flow) string {
	if f.IsCrossFile() {
		return fmt.Sprintf("%s data from %s reaches %s in %s after %d call hop(s)",
			f.SourceKind, f.Source, f.SinkCall, f.SinkFunction, len(f.Hops))
	}
	return fmt.Sprintf("%s data from %s reaches %s within %s",
		f.SourceKind, f.Source, f.SinkCall, f.SinkFunction)
}

func renderPath(f crossfile.Flow) []string {
	path := []string{fmt.Sprintf("%s reads %s at %s", f.SourceFunction, f.Source, f.SourceLoc)}
	for _, h := range f.Hops {
		path = append(path, fmt.Sprintf("%s.%s calls %s.%s at %s [%s]",
			h.FromModule, h.FromFunction, h.ToModule, h.ToFunction, h.CallLoc, h.EdgeKind))
	}
	path = append(path, fmt.Sprintf("%s invokes %s at %s", f.SinkFunction, f.SinkCall, f.SinkLoc))
	return path
}

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteSARIF renders the report as a SARIF 2.1.0 log. One rule is emitted
// per distinct CWE.
func WriteSARIF(w io.Writer, r *Report) error {
	rules := make(map[string]*sarif.ReportingDescriptor)
	var ruleOrder []string
	results := make([]*sarif.Result, 0, len(r.Vulnerabilities))

	for _, v := range r.Vulnerabilities {
		if _, ok := rules[v.CWE]; !ok {
			rules[v.CWE] = &sarif.ReportingDescriptor{
				ID:               v.CWE,
				Name:             sarif.Ptr(v.Title),
				ShortDescription: &sarif.MultiformatMessageString{Text: sarif.Ptr(v.Title)},
			}
			ruleOrder = append(ruleOrder, v.CWE)
		}
		results = append(results, &sarif.Result{
			RuleID:  v.CWE,
			Level:   sarifLevel(v.Severity),
			Message: &sarif.Message{Text: sarif.Ptr(v.Description)},
			Locations: []*sarif.Location{{
				PhysicalLocation: &sarif.PhysicalLocation{
					ArtifactLocation: &sarif.ArtifactLocation{URI: sarif.Ptr(v.Location.File)},
					Region: &sarif.Region{
						StartLine:   sarif.Ptr(v.Location.Line),
						StartColumn: sarif.Ptr(v.Location.Column),
					},
				},
			}},
			Properties: &sarif.PropertyBag{
				"confidence": v.Confidence,
				"crossFile":  v.CrossFile,
				"flowPath":   v.FlowPath,
			},
		})
	}

	sort.Strings(ruleOrder)
	descriptors := make([]*sarif.ReportingDescriptor, 0, len(ruleOrder))
	for _, id := range ruleOrder {
		descriptors = append(descriptors, rules[id])
	}
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{{
			Tool: &sarif.Tool{Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        sarif.Ptr(catalog.Version),
				InformationURI: sarif.Ptr(ToolInfoURI),
				Rules:          descriptors,
			}},
			Results: results,
		}},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return fmt.Errorf("encoding sarif log: %w", err)
	}
	return nil
}

func sarifLevel(severity string) sarif.Level {
	switch catalog.Severity(severity) {
	case catalog.SeverityCritical, catalog.SeverityHigh:
		return sarif.LevelError
	case catalog.SeverityMedium:
		return sarif.LevelWarning
	}
	return sarif.LevelNote
}
