// Package dispatcher maps named operations onto import runs. It replaces
// name-based method lookup with an explicit table of typed handlers shared by
// the CLI and the ops API.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/importer"
)

// Op names a dispatchable operation.
type Op string

// Supported operations.
const (
	OpImportAll    Op = "import_all"
	OpImportSource Op = "import_source"
	OpListSources  Op = "list_sources"
)

var (
	// ErrUnknownOp is returned for operations missing from the table.
	ErrUnknownOp = errors.New("unknown operation")
	// ErrUnknownSource is returned when a requested source is not registered.
	ErrUnknownSource = errors.New("unknown source")
	// ErrRunInProgress is returned when an import is requested while one runs.
	ErrRunInProgress = errors.New("an import run is already in progress")
)

// Args are the typed arguments of every operation. Handlers read only the
// fields they need.
type Args struct {
	// RunID is assigned when empty.
	RunID string
	// Sources selects the importers; OpImportSource needs exactly one.
	Sources []string
	// ContinueOnFailure overrides run.continue_on_failure when set.
	ContinueOnFailure *bool
}

// RunRequest is what the dispatcher hands to the RunFunc.
type RunRequest struct {
	RunID             string
	Sources           []string
	ContinueOnFailure bool
}

// RunFunc executes one import run.
type RunFunc func(ctx context.Context, req RunRequest) (importer.Summary, error)

// IDGenerator creates run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// SourceInfo describes one configured source.
type SourceInfo struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	URLs    []string `json:"urls,omitempty"`
}

// Outcome is the result of an operation.
type Outcome struct {
	RunID   string            `json:"run_id,omitempty"`
	Summary *importer.Summary `json:"summary,omitempty"`
	Sources []SourceInfo      `json:"sources,omitempty"`
}

type handler func(ctx context.Context, args Args) (Outcome, error)

// Dispatcher serialises import runs and routes operations.
type Dispatcher struct {
	cfg    config.Config
	run    RunFunc
	ids    IDGenerator
	logger *zap.Logger
	ops    map[Op]handler

	mu      sync.Mutex
	running string
	wg      sync.WaitGroup
}

// New builds a Dispatcher over run.
func New(cfg config.Config, run RunFunc, ids IDGenerator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{cfg: cfg, run: run, ids: ids, logger: logger.Named("dispatcher")}
	d.ops = map[Op]handler{
		OpImportAll:    d.importAll,
		OpImportSource: d.importSource,
		OpListSources:  d.listSources,
	}
	return d
}

// Ops lists the registered operations.
func (d *Dispatcher) Ops() []Op {
	out := make([]Op, 0, len(d.ops))
	for op := range d.ops {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs op synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, op Op, args Args) (Outcome, error) {
	h, ok := d.ops[op]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	return h(ctx, args)
}

// Start launches an import operation in the background and returns its run
// id once the run slot is reserved. The run uses ctx with cancellation
// stripped so it outlives the triggering request; Wait blocks until it ends.
func (d *Dispatcher) Start(ctx context.Context, op Op, args Args) (string, error) {
	if op != OpImportAll && op != OpImportSource {
		return "", fmt.Errorf("%w: %q cannot run in the background", ErrUnknownOp, op)
	}
	req, err := d.request(op, args)
	if err != nil {
		return "", err
	}
	if err := d.acquire(req.RunID); err != nil {
		return "", err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release()
		if _, err := d.run(context.WithoutCancel(ctx), req); err != nil {
			d.logger.Error("background import failed", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}()
	return req.RunID, nil
}

// Running returns the id of the active run, if any.
func (d *Dispatcher) Running() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running, d.running != ""
}

// Wait blocks until background runs finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) importAll(ctx context.Context, args Args) (Outcome, error) {
	return d.runSync(ctx, OpImportAll, args)
}

func (d *Dispatcher) importSource(ctx context.Context, args Args) (Outcome, error) {
	return d.runSync(ctx, OpImportSource, args)
}

func (d *Dispatcher) listSources(context.Context, Args) (Outcome, error) {
	enabled := d.cfg.EnabledSources()
	out := Outcome{}
	for _, name := range config.SourceNames() {
		src, _ := d.cfg.Source(name)
		info := SourceInfo{Name: name, Enabled: slices.Contains(enabled, name)}
		if src.URL != "" {
			info.URLs = append(info.URLs, src.URL)
		}
		info.URLs = append(info.URLs, src.URLs...)
		out.Sources = append(out.Sources, info)
	}
	return out, nil
}

func (d *Dispatcher) runSync(ctx context.Context, op Op, args Args) (Outcome, error) {
	req, err := d.request(op, args)
	if err != nil {
		return Outcome{}, err
	}
	if err := d.acquire(req.RunID); err != nil {
		return Outcome{}, err
	}
	defer d.release()
	summary, err := d.run(ctx, req)
	return Outcome{RunID: req.RunID, Summary: &summary}, err
}

func (d *Dispatcher) request(op Op, args Args) (RunRequest, error) {
	sources := args.Sources
	switch op {
	case OpImportSource:
		if len(sources) != 1 {
			return RunRequest{}, fmt.Errorf("%s requires exactly one source, got %d", op, len(sources))
		}
	case OpImportAll:
		if len(sources) == 0 {
			sources = d.cfg.EnabledSources()
		}
	}
	for _, name := range sources {
		if !slices.Contains(config.SourceNames(), name) {
			return RunRequest{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
	}
	runID := args.RunID
	if runID == "" {
		id, err := d.ids.NewID()
		if err != nil {
			return RunRequest{}, fmt.Errorf("generate run id: %w", err)
		}
		runID = id
	}
	continueOnFailure := d.cfg.Run.ContinueOnFailure
	if args.ContinueOnFailure != nil {
		continueOnFailure = *args.ContinueOnFailure
	}
	return RunRequest{RunID: runID, Sources: sources, ContinueOnFailure: continueOnFailure}, nil
}

func (d *Dispatcher) acquire(runID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running != "" {
		return fmt.Errorf("%w (run %s)", ErrRunInProgress, d.running)
	}
	d.running = runID
	return nil
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = ""
}
