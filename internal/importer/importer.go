package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/download"
	"github.com/JakeFAU/dataset-importer/internal/logging"
	"github.com/JakeFAU/dataset-importer/internal/storage"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

// Importer loads one source.
type Importer interface {
	Source() string
	Import(ctx context.Context) (batch.Result, error)
	State() State
	Processed() int64
}

// Fetcher downloads payloads; *download.Downloader satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts download.Options) (*download.Artifact, error)
	FetchMany(ctx context.Context, urls []string, opts download.Options, parallelism int) []download.Result
}

// Repository writes rows inside a transaction; postgres.DatasetRepository
// satisfies it.
type Repository interface {
	UpsertSurah(ctx context.Context, tx store.Tx, s dataset.Surah) (int64, error)
	UpsertVerses(ctx context.Context, tx store.Tx, verses []dataset.Verse) error
	UpsertHadithBooks(ctx context.Context, tx store.Tx, books []dataset.HadithBook) error
	UpsertHadiths(ctx context.Context, tx store.Tx, hadiths []dataset.Hadith) error
	UpsertOJKIllegals(ctx context.Context, tx store.Tx, rows []dataset.OJKIllegal) error
	UpsertOJKApps(ctx context.Context, tx store.Tx, rows []dataset.OJKApp) error
	UpsertOJKProducts(ctx context.Context, tx store.Tx, rows []dataset.OJKProduct) error
	UpsertBankCountries(ctx context.Context, tx store.Tx, rows []dataset.BankCountry) error
	UpsertBankCities(ctx context.Context, tx store.Tx, rows []dataset.BankCity) error
	UpsertBanks(ctx context.Context, tx store.Tx, rows []dataset.Bank) error
	CityIDs(ctx context.Context, tx store.Tx, countryCodes []string) (map[dataset.CityKey]int64, error)
	UpsertAsmaulHusna(ctx context.Context, tx store.Tx, a dataset.AsmaulHusna) (int64, error)
	VerseIDs(ctx context.Context, tx store.Tx, refs []dataset.VerseRef) (map[dataset.VerseRef]int64, error)
	SyncAsmaulHusnaVerses(ctx context.Context, tx store.Tx, asmaulHusnaID int64, verseIDs []int64) error
}

// Archiver copies a downloaded payload somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, source string, payload storage.Payload) (string, error)
}

// Deps are the collaborators shared by every importer.
type Deps struct {
	Fetcher     Fetcher
	Runner      store.Runner
	Repo        Repository
	Logger      *zap.Logger
	Download    download.Options
	Parallelism int
	ChunkSize   int
	// Archiver is optional.
	Archiver Archiver
	// Observer is optional.
	Observer Observer
	// BatchOptions are applied to every importer's processor.
	BatchOptions []batch.Option
}

func (d Deps) validate() error {
	switch {
	case d.Fetcher == nil:
		return errors.New("fetcher is required")
	case d.Runner == nil:
		return errors.New("transaction runner is required")
	case d.Repo == nil:
		return errors.New("repository is required")
	}
	return nil
}

// base carries the plumbing shared by the source importers.
type base struct {
	source    string
	deps      Deps
	logger    *zap.Logger
	processor *batch.Processor
	observer  Observer
	state     atomic.Int32
}

func newBase(source string, deps Deps) (*base, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("%s importer: %w", source, err)
	}
	logger := logging.ForSource(deps.Logger, source)
	observer := deps.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	b := &base{
		source:   source,
		deps:     deps,
		logger:   logger,
		observer: observer,
	}
	opts := append([]batch.Option{
		batch.WithChunkObserver(func(r batch.ChunkReport) { observer.ChunkDone(source, r) }),
	}, deps.BatchOptions...)
	b.processor = batch.NewProcessor(deps.Runner, logger, opts...)
	return b, nil
}

func (b *base) Source() string { return b.source }

func (b *base) State() State { return State(b.state.Load()) }

func (b *base) Processed() int64 { return b.processor.Processed() }

func (b *base) transition(to State, err error) {
	from := b.State()
	if from == to {
		return
	}
	if !canTransition(from, to) {
		b.logger.Warn("unexpected state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	b.state.Store(int32(to))
	b.observer.StateChanged(Transition{Source: b.source, From: from, To: to, Err: err, At: time.Now()})
}

// fail moves to Failed and returns err.
func (b *base) fail(err error) error {
	b.transition(Failed, err)
	return err
}

func (b *base) options(sha string) download.Options {
	opts := b.deps.Download
	opts.Label = b.source
	if sha != "" {
		opts.ExpectedSHA256 = sha
	}
	return opts
}

// archive stores the payload when an archiver is configured. Failures are
// logged only.
func (b *base) archive(ctx context.Context, artifact *download.Artifact) {
	if b.deps.Archiver == nil || artifact == nil {
		return
	}
	uri, err := b.deps.Archiver.Archive(ctx, b.source, artifact)
	if err != nil {
		b.logger.Warn("archive payload failed", zap.Error(err))
		return
	}
	b.logger.Info("payload archived", zap.String("uri", uri))
}

// fetch downloads url and archives the payload.
func (b *base) fetch(ctx context.Context, url, sha string) (*download.Artifact, error) {
	b.transition(Downloading, nil)
	b.logger.Info("downloading data", zap.String("url", url))
	artifact, err := b.deps.Fetcher.Fetch(ctx, url, b.options(sha))
	if err != nil {
		return nil, err
	}
	b.archive(ctx, artifact)
	return artifact, nil
}

// decode stream-decodes the artifact into v.
func (b *base) decode(artifact *download.Artifact, v any) error {
	r, err := artifact.Open()
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck // read-only handle
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return &MalformedPayloadError{Source: b.source, Err: err}
	}
	return nil
}

// reject logs a dropped record.
func (b *base) reject(kind, record string, missing ...string) {
	err := &RecordValidationError{Source: b.source, Kind: kind, Record: record, Missing: missing}
	b.logger.Warn("invalid record skipped", zap.String("kind", kind), zap.Error(err))
}

// writeOne runs fn in a transaction that ignores ctx cancellation.
func (b *base) writeOne(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return b.deps.Runner.RunInTransaction(context.WithoutCancel(ctx), fn)
}

func (b *base) chunkSize() int {
	if b.deps.ChunkSize > 0 {
		return b.deps.ChunkSize
	}
	return batch.DefaultChunkSize
}

// process runs batch.Process with this importer's processor.
func process[T any](ctx context.Context, b *base, label string, rows []T, upsert batch.UpsertFunc[T]) (batch.Result, error) {
	b.transition(ChunkUpserting, nil)
	res, err := batch.Process(ctx, b.processor, label, rows, b.chunkSize(), upsert, nil)
	if err != nil {
		return res, err
	}
	b.logger.Info("section processed",
		zap.String("section", label),
		zap.Int("records", len(rows)),
		zap.Object("result", res),
	)
	return res, nil
}
