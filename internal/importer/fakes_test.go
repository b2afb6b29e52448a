package importer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/download"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

type nopTx struct{}

func (nopTx) Exec(context.Context, string, ...any) (int64, error)       { return 0, nil }
func (nopTx) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (nopTx) QueryRow(context.Context, string, ...any) store.Row        { return nil }

type fakeRunner struct {
	mu  sync.Mutex
	txs int
	err error
}

func (f *fakeRunner) RunInTransaction(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	f.mu.Lock()
	f.txs++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx, nopTx{})
}

type hadithKey struct {
	book   string
	number int
}

// fakeRepo mimics ON CONFLICT upserts with maps. Failing rows abort the whole
// call before anything is written, like a rolled back statement.
type fakeRepo struct {
	mu sync.Mutex

	nextID    int64
	surahs    map[int]dataset.Surah
	surahIDs  map[int]int64
	verses    map[[2]int64]dataset.Verse
	books     map[string]dataset.HadithBook
	hadiths   map[hadithKey]dataset.Hadith
	illegals  map[int64]dataset.OJKIllegal
	apps      map[int64]dataset.OJKApp
	products  map[int64]dataset.OJKProduct
	countries map[string]dataset.BankCountry
	cities    map[dataset.CityKey]int64
	banks     map[string]dataset.Bank
	names     map[int]dataset.AsmaulHusna
	nameIDs   map[int]int64
	links     map[int64][]int64

	failVerse func(dataset.Verse) bool
	failCity  func(dataset.BankCity) bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		surahs:    map[int]dataset.Surah{},
		surahIDs:  map[int]int64{},
		verses:    map[[2]int64]dataset.Verse{},
		books:     map[string]dataset.HadithBook{},
		hadiths:   map[hadithKey]dataset.Hadith{},
		illegals:  map[int64]dataset.OJKIllegal{},
		apps:      map[int64]dataset.OJKApp{},
		products:  map[int64]dataset.OJKProduct{},
		countries: map[string]dataset.BankCountry{},
		cities:    map[dataset.CityKey]int64{},
		banks:     map[string]dataset.Bank{},
		names:     map[int]dataset.AsmaulHusna{},
		nameIDs:   map[int]int64{},
		links:     map[int64][]int64{},
	}
}

var errConstraint = errors.New("violates check constraint")

func (r *fakeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) UpsertSurah(_ context.Context, _ store.Tx, s dataset.Surah) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.surahIDs[s.Number]
	if !ok {
		id = r.id()
		r.surahIDs[s.Number] = id
	}
	r.surahs[s.Number] = s
	return id, nil
}

func (r *fakeRepo) UpsertVerses(_ context.Context, _ store.Tx, verses []dataset.Verse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range verses {
		if r.failVerse != nil && r.failVerse(v) {
			return errConstraint
		}
	}
	for _, v := range verses {
		r.verses[[2]int64{v.SurahID, int64(v.VerseNumber)}] = v
	}
	return nil
}

func (r *fakeRepo) UpsertHadithBooks(_ context.Context, _ store.Tx, books []dataset.HadithBook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range books {
		r.books[b.ID] = b
	}
	return nil
}

func (r *fakeRepo) UpsertHadiths(_ context.Context, _ store.Tx, hadiths []dataset.Hadith) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hadiths {
		r.hadiths[hadithKey{h.BookID, h.Number}] = h
	}
	return nil
}

func (r *fakeRepo) UpsertOJKIllegals(_ context.Context, _ store.Tx, rows []dataset.OJKIllegal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range rows {
		r.illegals[x.ID] = x
	}
	return nil
}

func (r *fakeRepo) UpsertOJKApps(_ context.Context, _ store.Tx, rows []dataset.OJKApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range rows {
		r.apps[x.ID] = x
	}
	return nil
}

func (r *fakeRepo) UpsertOJKProducts(_ context.Context, _ store.Tx, rows []dataset.OJKProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range rows {
		r.products[x.ID] = x
	}
	return nil
}

func (r *fakeRepo) UpsertBankCountries(_ context.Context, _ store.Tx, rows []dataset.BankCountry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range rows {
		r.countries[x.Code] = x
	}
	return nil
}

func (r *fakeRepo) UpsertBankCities(_ context.Context, _ store.Tx, rows []dataset.BankCity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range rows {
		if r.failCity != nil && r.failCity(x) {
			return errConstraint
		}
	}
	for _, x := range rows {
		key := dataset.CityKey{CountryCode: x.CountryCode, Name: x.Name}
		if _, ok := r.cities[key]; !ok {
			r.cities[key] = r.id()
		}
	}
	return nil
}

func (r *fakeRepo) UpsertBanks(_ context.Context, _ store.Tx, rows []dataset.Bank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range rows {
		r.banks[x.SwiftCode] = x
	}
	return nil
}

func (r *fakeRepo) CityIDs(_ context.Context, _ store.Tx, codes []string) (map[dataset.CityKey]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, c := range codes {
		want[c] = true
	}
	out := map[dataset.CityKey]int64{}
	for k, id := range r.cities {
		if want[k.CountryCode] {
			out[k] = id
		}
	}
	return out, nil
}

func (r *fakeRepo) UpsertAsmaulHusna(_ context.Context, _ store.Tx, a dataset.AsmaulHusna) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.nameIDs[a.Number]
	if !ok {
		id = r.id()
		r.nameIDs[a.Number] = id
	}
	r.names[a.Number] = a
	return id, nil
}

func (r *fakeRepo) VerseIDs(_ context.Context, _ store.Tx, refs []dataset.VerseRef) (map[dataset.VerseRef]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[dataset.VerseRef]int64{}
	for _, ref := range refs {
		surahID, ok := r.surahIDs[ref.Surah]
		if !ok {
			continue
		}
		if _, ok := r.verses[[2]int64{surahID, int64(ref.Verse)}]; ok {
			out[ref] = surahID*1000 + int64(ref.Verse)
		}
	}
	return out, nil
}

func (r *fakeRepo) SyncAsmaulHusnaVerses(_ context.Context, _ store.Tx, id int64, verseIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := append([]int64(nil), verseIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	r.links[id] = ids
	return nil
}

// recordingObserver keeps every notification.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
	chunks      []batch.ChunkReport
	finished    []SourceReport
	started     []string
	summaries   []Summary
}

func (o *recordingObserver) RunStarted(_ string, sources []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, sources...)
}

func (o *recordingObserver) StateChanged(t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) ChunkDone(_ string, r batch.ChunkReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks = append(o.chunks, r)
}

func (o *recordingObserver) SourceFinished(_ string, r SourceReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func (o *recordingObserver) RunFinished(_ string, s Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, s)
}

func (o *recordingObserver) states(source string) []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []State
	for _, t := range o.transitions {
		if t.Source == source {
			out = append(out, t.To)
		}
	}
	return out
}

// payloadServer serves fixed bodies by path; unknown paths return 404.
func payloadServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	repo     *fakeRepo
	runner   *fakeRunner
	observer *recordingObserver
	tempDir  string
	deps     Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newFakeRepo(),
		runner:   &fakeRunner{},
		observer: &recordingObserver{},
		tempDir:  t.TempDir(),
	}
	opts := download.DefaultOptions()
	opts.MaxRetries = 0
	opts.MinFileSizeBytes = 1
	env.deps = Deps{
		Fetcher:     download.New(download.Config{TempDir: env.tempDir}),
		Runner:      env.runner,
		Repo:        env.repo,
		Logger:      zap.NewNop(),
		Download:    opts,
		Parallelism: 2,
		ChunkSize:   2,
		Observer:    env.observer,
	}
	return env
}

func (e *testEnv) requireNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.tempDir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp files must be removed")
}
