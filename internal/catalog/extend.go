package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Extension is the user-supplied overlay format for the built-in tables.
// Entries are additive; an extension cannot remove a built-in pattern.
type Extension struct {
	Sources []struct {
		Pattern string `yaml:"pattern"`
		Kind    string `yaml:"kind"`
	} `yaml:"sources"`
	Sinks []struct {
		Pattern     string `yaml:"pattern"`
		Category    string `yaml:"category"`
		TaintedArgs []int  `yaml:"tainted_args"`
	} `yaml:"sinks"`
	Sanitizers []struct {
		Pattern string   `yaml:"pattern"`
		Clears  []string `yaml:"clears"`
	} `yaml:"sanitizers"`
}

var sourceByName = map[string]Source{
	"user-input":   SourceUserInput,
	"environment":  SourceEnvironment,
	"file-content": SourceFileContent,
	"network":      SourceNetwork,
}

var sinkByName = func() map[string]Sink {
	m := make(map[string]Sink, len(AllSinks))
	for _, s := range AllSinks {
		m[s.String()] = s
	}
	return m
}()

// LoadExtension reads a YAML overlay and merges it into the live tables.
// Unknown kind or category names are hard errors so that a typoed overlay
// fails loudly instead of silently matching nothing.
func LoadExtension(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading catalog extension: %w", err)
	}
	var ext Extension
	if err := yaml.Unmarshal(raw, &ext); err != nil {
		return fmt.Errorf("parsing catalog extension %s: %w", path, err)
	}

	for _, s := range ext.Sources {
		kind, ok := sourceByName[s.Kind]
		if !ok {
			return fmt.Errorf("catalog extension %s: unknown source kind %q", path, s.Kind)
		}
		knownSources[s.Pattern] = kind
	}
	for _, s := range ext.Sinks {
		cat, ok := sinkByName[s.Category]
		if !ok {
			return fmt.Errorf("catalog extension %s: unknown sink category %q", path, s.Category)
		}
		knownSinks[s.Pattern] = SinkEntry{Sink: cat, TaintedArgs: s.TaintedArgs}
	}
	for _, s := range ext.Sanitizers {
		var clears []Sink
		for _, name := range s.Clears {
			cat, ok := sinkByName[name]
			if !ok {
				return fmt.Errorf("catalog extension %s: unknown sink category %q", path, name)
			}
			clears = append(clears, cat)
		}
		knownSanitizers[s.Pattern] = SanitizerEntry{Clears: clears}
	}
	return nil
}
