package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/metrics"
	"github.com/JakeFAU/dataset-importer/internal/report"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

// DefaultChunkSize is used when Process is given a non-positive size.
const DefaultChunkSize = 200

// UpsertFunc writes a chunk inside tx.
type UpsertFunc[T any] func(ctx context.Context, tx store.Tx, chunk []T) error

// SingleFunc writes one record inside tx.
type SingleFunc[T any] func(ctx context.Context, tx store.Tx, record T) error

// Identifier is implemented by records that can name themselves in logs.
type Identifier interface {
	RecordID() string
}

// DeadLetter receives records that failed permanently.
type DeadLetter interface {
	Record(label, recordID string, record any, cause error) error
}

// ChunkReport describes one finished chunk attempt.
type ChunkReport struct {
	Label     string
	Index     int
	Total     int
	Size      int
	Committed bool
	Processed int64
}

// ChunkObserver is notified after every chunk attempt.
type ChunkObserver func(ChunkReport)

// Processor runs chunked upserts against a store.Runner and tracks how many
// records it has attempted.
type Processor struct {
	runner     store.Runner
	reporter   report.Reporter
	deadLetter DeadLetter
	observer   ChunkObserver
	processed  atomic.Int64
}

// Option customises a Processor.
type Option func(*Processor)

// WithDeadLetter appends permanently failed records to dl.
func WithDeadLetter(dl DeadLetter) Option {
	return func(p *Processor) {
		p.deadLetter = dl
	}
}

// WithChunkObserver registers fn to run after every chunk.
func WithChunkObserver(fn ChunkObserver) Option {
	return func(p *Processor) {
		p.observer = fn
	}
}

// NewProcessor builds a Processor.
func NewProcessor(runner store.Runner, reporter report.Reporter, opts ...Option) *Processor {
	p := &Processor{
		runner:   runner,
		reporter: report.OrNop(reporter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Processed returns the number of records whose chunk has been attempted. It
// never decreases and is safe to read concurrently with Process.
func (p *Processor) Processed() int64 {
	return p.processed.Load()
}

// Process splits records into chunks of chunkSize and upserts each chunk in
// its own transaction. A failed chunk is handed to ReprocessIndividually with
// single; a nil single falls back to upsert with a one-record slice.
//
// Chunks run on a context detached from ctx's cancellation, so cancellation
// and deadlines are only observed between chunks. The returned error is
// non-nil only when ctx ends early or a chunk fails on the connection itself.
func Process[T any](ctx context.Context, p *Processor, label string, records []T, chunkSize int, upsert UpsertFunc[T], single SingleFunc[T]) (Result, error) {
	var res Result
	if len(records) == 0 {
		return res, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if single == nil {
		single = func(ctx context.Context, tx store.Tx, record T) error {
			return upsert(ctx, tx, []T{record})
		}
	}

	chunks := chunk(records, chunkSize)
	txCtx := context.WithoutCancel(ctx)
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: stopped before chunk %d of %d: %w", label, i+1, len(chunks), err)
		}

		err := p.runner.RunInTransaction(txCtx, func(ctx context.Context, tx store.Tx) error {
			return upsert(ctx, tx, c)
		})
		processed := p.processed.Add(int64(len(c)))
		p.notify(ChunkReport{Label: label, Index: i, Total: len(chunks), Size: len(c), Committed: err == nil, Processed: processed})

		if err == nil {
			res.Committed += len(c)
			metrics.ObserveChunk(label, "committed")
			metrics.ObserveRecords(label, Committed.String(), len(c))
			continue
		}

		chunkErr := &ChunkTransactionError{Label: label, Index: i, Size: len(c), Err: err}
		if store.IsConnectionError(err) {
			chunkErr.Fatal = true
			metrics.ObserveChunk(label, "fatal")
			p.reporter.Error("chunk failed on connection; aborting",
				zap.String("label", label),
				zap.Int("chunk", i),
				zap.Int("size", len(c)),
				zap.Error(err),
			)
			return res, chunkErr
		}

		metrics.ObserveChunk(label, "rolled_back")
		p.reporter.Warn("chunk rolled back; reprocessing records individually",
			zap.String("label", label),
			zap.Int("chunk", i),
			zap.Int("size", len(c)),
			zap.Error(chunkErr),
		)
		fallback, err := ReprocessIndividually(txCtx, p, label, c, single)
		res.Add(fallback)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Processor) notify(r ChunkReport) {
	if p.observer != nil {
		p.observer(r)
	}
}

// chunk splits items into sub-slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 || size <= 0 {
		return nil
	}

	numChunks := (len(items) + size - 1) / size
	result := make([][]T, 0, numChunks)

	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		result = append(result, items[i:end:end])
	}

	return result
}
