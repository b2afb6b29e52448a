package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
)

// SourceReport is the outcome of one importer within a run.
type SourceReport struct {
	Source    string        `json:"source"`
	State     string        `json:"state"`
	Result    batch.Result  `json:"result"`
	Processed int64         `json:"processed"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
	Err       error         `json:"-"`
}

// Summary describes a whole run.
type Summary struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Elapsed  time.Duration  `json:"elapsed"`
	Result   batch.Result   `json:"result"`
	Sources  []SourceReport `json:"sources"`
	Failed   int            `json:"failed"`
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	RunID             string
	ContinueOnFailure bool
	// MaxExecution bounds the whole run; zero disables the deadline.
	MaxExecution time.Duration
	Logger       *zap.Logger
	Observer     Observer
}

// Runner executes importers sequentially.
type Runner struct {
	cfg       RunnerConfig
	importers []Importer
	logger    *zap.Logger
	observer  Observer
}

// NewRunner builds a Runner over importers.
func NewRunner(cfg RunnerConfig, importers []Importer) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Runner{
		cfg:       cfg,
		importers: importers,
		logger:    logger.Named("runner").With(zap.String("run_id", cfg.RunID)),
		observer:  observer,
	}
}

// Run imports every source in order. A failing source aborts the run unless
// ContinueOnFailure is set; the summary covers every source attempted.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.cfg.MaxExecution > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.MaxExecution)
		defer cancel()
	}

	summary := Summary{RunID: r.cfg.RunID, Started: time.Now()}
	names := make([]string, len(r.importers))
	for i, imp := range r.importers {
		names[i] = imp.Source()
	}
	r.logger.Info("starting importers", zap.Strings("sources", names))
	r.observer.RunStarted(r.cfg.RunID, names)

	var runErr error
	total := len(r.importers)
	for i, imp := range r.importers {
		r.logger.Info(fmt.Sprintf("[%d/%d] Running %s importer...", i+1, total, imp.Source()))
		report := r.runOne(ctx, imp)
		summary.Sources = append(summary.Sources, report)
		summary.Result.Add(report.Result)
		r.observer.SourceFinished(r.cfg.RunID, report)

		if report.Err == nil {
			r.logger.Info(fmt.Sprintf("%s completed in %.2fs", imp.Source(), report.Elapsed.Seconds()),
				zap.Object("result", report.Result),
			)
			continue
		}
		summary.Failed++
		r.logger.Error(fmt.Sprintf("%s importer failed", imp.Source()), zap.Error(report.Err))
		if !r.cfg.ContinueOnFailure || errors.Is(report.Err, context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			runErr = fmt.Errorf("%s importer failed: %w", imp.Source(), report.Err)
			break
		}
	}

	summary.Finished = time.Now()
	summary.Elapsed = summary.Finished.Sub(summary.Started)
	r.observer.RunFinished(r.cfg.RunID, summary)
	if runErr != nil {
		r.logger.Error("data import aborted", zap.Duration("elapsed", summary.Elapsed), zap.Error(runErr))
		return summary, runErr
	}
	r.logger.Info("data import completed",
		zap.Duration("elapsed", summary.Elapsed),
		zap.Int("sources", len(summary.Sources)),
		zap.Int("failed", summary.Failed),
		zap.Object("result", summary.Result),
	)
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, imp Importer) SourceReport {
	start := time.Now()
	res, err := imp.Import(ctx)
	report := SourceReport{
		Source:    imp.Source(),
		State:     imp.State().String(),
		Result:    res,
		Processed: imp.Processed(),
		Elapsed:   time.Since(start),
		Err:       err,
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

// ApplyRuntimeLimits sets the soft memory limit for the process.
func ApplyRuntimeLimits(cfg config.RuntimeConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MemoryLimitBytes > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimitBytes)
	}
	logger.Info("runtime limits",
		zap.Int64("memory_limit_bytes", cfg.MemoryLimitBytes),
		zap.Duration("max_execution", time.Duration(cfg.MaxExecutionSeconds)*time.Second),
	)
}
