package importer

import (
	"context"
	"fmt"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
)

// Factory builds an importer from its source configuration.
type Factory func(src config.SourceConfig, deps Deps) (Importer, error)

var factories = map[string]Factory{
	config.SourceQuran: func(src config.SourceConfig, deps Deps) (Importer, error) {
		return NewQuran(src, deps)
	},
	config.SourceHadith: func(src config.SourceConfig, deps Deps) (Importer, error) {
		return NewHadith(src, deps)
	},
	config.SourceOJK: func(src config.SourceConfig, deps Deps) (Importer, error) {
		return NewOJK(src, deps)
	},
	config.SourceSwiftGlobal: func(src config.SourceConfig, deps Deps) (Importer, error) {
		return NewSwiftGlobal(src, deps)
	},
	config.SourceAsmaulHusna: func(src config.SourceConfig, deps Deps) (Importer, error) {
		return NewAsmaulHusna(src, deps)
	},
}

// New builds the importer for source.
func New(source string, src config.SourceConfig, deps Deps) (Importer, error) {
	factory, ok := factories[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	return factory(src, deps)
}

// Build creates importers for names, or for every enabled source when names
// is empty. Importers are returned in canonical run order. A source whose
// configuration is unusable is returned as an importer that fails on Import,
// so the runner reports it alongside the others.
func Build(cfg config.Config, names []string, deps Deps) ([]Importer, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("build importers: %w", err)
	}
	selected := cfg.EnabledSources()
	if len(names) > 0 {
		want := make(map[string]struct{}, len(names))
		for _, n := range names {
			if _, ok := factories[n]; !ok {
				return nil, fmt.Errorf("unknown source %q", n)
			}
			want[n] = struct{}{}
		}
		selected = selected[:0:0]
		for _, n := range config.SourceNames() {
			if _, ok := want[n]; ok {
				selected = append(selected, n)
			}
		}
	}

	importers := make([]Importer, 0, len(selected))
	for _, name := range selected {
		src, _ := cfg.Source(name)
		imp, err := New(name, src, deps)
		if err != nil {
			imp = &misconfigured{source: name, err: err}
		}
		importers = append(importers, imp)
	}
	return importers, nil
}

// misconfigured stands in for a source whose importer could not be built.
type misconfigured struct {
	source string
	err    error
}

func (m *misconfigured) Source() string   { return m.source }
func (m *misconfigured) State() State     { return Failed }
func (m *misconfigured) Processed() int64 { return 0 }

func (m *misconfigured) Import(context.Context) (batch.Result, error) {
	return batch.Result{}, m.err
}
