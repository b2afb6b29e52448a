package importer

import "github.com/JakeFAU/dataset-importer/internal/batch"

// Observer receives lifecycle notifications from importers and the Runner.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	RunStarted(runID string, sources []string)
	StateChanged(t Transition)
	ChunkDone(source string, r batch.ChunkReport)
	SourceFinished(runID string, r SourceReport)
	RunFinished(runID string, s Summary)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RunStarted(string, []string)         {}
func (NopObserver) StateChanged(Transition)             {}
func (NopObserver) ChunkDone(string, batch.ChunkReport) {}
func (NopObserver) SourceFinished(string, SourceReport) {}
func (NopObserver) RunFinished(string, Summary)         {}
