package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/download"
)

func TestHadithImport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/hadith.json": `{"hadiths":[
		{"id":"bukhari","name":"Bukhari","total_hadiths":2,"hadiths":[
			{"number":1,"arabic":"a","translation":"t"},
			{"number":2,"arabic":"b","translation":""}]},
		{"id":"muslim","name":"Muslim","total_hadiths":0,"hadiths":[]},
		{"id":"","name":"Nameless","total_hadiths":1,"hadiths":[{"number":1,"arabic":"x","translation":"y"}]}
	]}`})
	h, err := NewHadith(config.SourceConfig{URL: srv.URL + "/hadith.json"}, env.deps)
	require.NoError(t, err)

	res, err := h.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch.Result{Committed: 3, Rejected: 3}, res)
	assert.Len(t, env.repo.books, 2)
	assert.Equal(t, 0, env.repo.books["muslim"].TotalHadiths)
	require.Len(t, env.repo.hadiths, 1)
	assert.Equal(t, "t", env.repo.hadiths[hadithKey{"bukhari", 1}].Translation)
	env.requireNoTempFiles(t)
}

func TestOJKImport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/ojk.json": `{"ojk":{
		"illegals":[
			{"id":1,"name":"PT A","alias":["a"],"web":null,"entity_type":"fintech","input_date":"05/03/2024","description":"d"},
			{"id":2,"name":"PT B","input_date":"31/02/2024"},
			{"name":"no id"}],
		"apps":[{"id":"10","name":"App","url":"https://a.example","owner":"O"}],
		"products":[{"id":20,"name":"P","management":"M","custodian":"C","type":"T"}]
	}}`})
	o, err := NewOJK(config.SourceConfig{URL: srv.URL + "/ojk.json"}, env.deps)
	require.NoError(t, err)

	res, err := o.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch.Result{Committed: 4, Rejected: 1}, res)

	a := env.repo.illegals[1]
	assert.JSONEq(t, `["a"]`, string(a.Alias))
	assert.JSONEq(t, `[]`, string(a.Web))
	assert.JSONEq(t, `[]`, string(a.Address))
	require.NotNil(t, a.InputDate)
	assert.Equal(t, "2024-03-05", a.InputDate.Format("2006-01-02"))
	require.NotNil(t, a.Description)
	assert.Equal(t, "d", *a.Description)
	assert.Nil(t, env.repo.illegals[2].InputDate)
	assert.Nil(t, env.repo.illegals[2].Description)

	require.NotNil(t, env.repo.apps[10].URL)
	assert.Equal(t, "https://a.example", *env.repo.apps[10].URL)
	assert.Equal(t, "C", env.repo.products[20].Custodian)
}

func TestOJKImportCountsMergedDuplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	core, logs := observer.New(zap.WarnLevel)
	env.deps.Logger = zap.New(core)
	srv := payloadServer(t, map[string]string{"/ojk.json": `{"ojk":{
		"illegals":[{"id":1,"name":"old"},{"id":2,"name":"PT B"},{"id":1,"name":"new"}],
		"apps":[{"id":10,"name":"App"},{"id":10,"name":"App 2"}],
		"products":[]
	}}`})
	o, err := NewOJK(config.SourceConfig{URL: srv.URL + "/ojk.json"}, env.deps)
	require.NoError(t, err)

	res, err := o.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch.Result{Committed: 3, Merged: 2}, res)
	assert.Equal(t, 5, res.Total())
	assert.Equal(t, "new", env.repo.illegals[1].Name)
	assert.Equal(t, "App 2", env.repo.apps[10].Name)

	merged := logs.FilterMessage("duplicate records merged into their last occurrence").All()
	require.Len(t, merged, 2)
	assert.Equal(t, "illegal", merged[0].ContextMap()["kind"])
	assert.Equal(t, int64(1), merged[0].ContextMap()["merged"])
}

func TestOJKImportRequiresSection(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/ojk.json": `{"data":{}}`})
	o, err := NewOJK(config.SourceConfig{URL: srv.URL + "/ojk.json"}, env.deps)
	require.NoError(t, err)

	_, err = o.Import(context.Background())
	var malformed *MalformedPayloadError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "ojk", malformed.Key)
}

const swiftFixture = `{"swift_global":{"countries":[
 {"country":"Indonesia","country_code":"ID","list":[
   {"bank":"BCA","city":"Jakarta","branch":"HQ","swift_code":"CENAIDJA"},
   {"bank":"BNI","city":"Jakarta","swift_code":"BNINIDJA"},
   {"bank":"BRI","city":"Surabaya","swift_code":"BRINIDJA"},
   {"bank":"NoCode","city":"Bandung","swift_code":""}]},
 {"country":"Malaysia","country_code":"MY","list":[
   {"bank":"Maybank","city":"Kuala Lumpur","swift_code":"MBBEMYKL"}]}
]}}`

func TestSwiftGlobalImport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/swift.json": swiftFixture})
	s, err := NewSwiftGlobal(config.SourceConfig{URL: srv.URL + "/swift.json"}, env.deps)
	require.NoError(t, err)

	res, err := s.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch.Result{Committed: 9, Rejected: 1}, res)
	assert.Len(t, env.repo.countries, 2)
	assert.Len(t, env.repo.cities, 3)
	require.Len(t, env.repo.banks, 4)

	jakarta := env.repo.cities[dataset.CityKey{CountryCode: "ID", Name: "Jakarta"}]
	bca := env.repo.banks["CENAIDJA"]
	assert.Equal(t, jakarta, bca.CityID)
	require.NotNil(t, bca.Branch)
	assert.Equal(t, "HQ", *bca.Branch)
	assert.Nil(t, env.repo.banks["BNINIDJA"].Branch)
	assert.Equal(t, jakarta, env.repo.banks["BNINIDJA"].CityID)
	assert.Equal(t, env.repo.cities[dataset.CityKey{CountryCode: "MY", Name: "Kuala Lumpur"}], env.repo.banks["MBBEMYKL"].CityID)
}

func TestSwiftGlobalSkipsBanksOfFailedCities(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.repo.failCity = func(c dataset.BankCity) bool { return c.Name == "Surabaya" }
	srv := payloadServer(t, map[string]string{"/swift.json": swiftFixture})
	s, err := NewSwiftGlobal(config.SourceConfig{URL: srv.URL + "/swift.json"}, env.deps)
	require.NoError(t, err)

	res, err := s.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch.Result{Committed: 7, Rejected: 2, Failed: 1}, res)
	_, ok := env.repo.banks["BRINIDJA"]
	assert.False(t, ok)
}

func seedVerses(t *testing.T, repo *fakeRepo) int64 {
	t.Helper()
	id, err := repo.UpsertSurah(context.Background(), nopTx{}, dataset.Surah{Number: 1})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertVerses(context.Background(), nopTx{}, []dataset.Verse{
		{SurahID: id, SurahNumber: 1, VerseNumber: 1},
		{SurahID: id, SurahNumber: 1, VerseNumber: 2},
	}))
	return id
}

const asmaBase = `{"data":[
 {"no":1,"arab":"الرحمن","latine":"Ar-Rahman","arti":"Yang Maha Pengasih"},
 {"no":2,"arab":"الرحيم","latine":"Ar-Rahim","arti":"Yang Maha Penyayang"},
 {"no":3,"arab":"","latine":"x","arti":"y"}]}`

const asmaEnrichment = `{"data":[
 {"number":1,"transliteration":"Ar-Raḥmān",
  "en":{"meaning":"The Most Gracious","desc":"desc en"},
  "fr":{"meaning":"Le Tout Miséricordieux","desc":null},
  "found":"(1:1) (1:2) (9:99)"}]}`

func TestAsmaulHusnaImport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	surahID := seedVerses(t, env.repo)
	srv := payloadServer(t, map[string]string{"/base.json": asmaBase, "/extra.json": asmaEnrichment})
	a, err := NewAsmaulHusna(config.SourceConfig{URLs: []string{srv.URL + "/base.json", srv.URL + "/extra.json"}}, env.deps)
	require.NoError(t, err)

	res, err := a.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch.Result{Committed: 2, Rejected: 1}, res)

	first := env.repo.names[1]
	assert.Equal(t, "Ar-Raḥmān", first.Latine)
	assert.Equal(t, "Yang Maha Pengasih", *first.Meaning["id"])
	assert.Equal(t, "The Most Gracious", *first.Meaning["en"])
	assert.Equal(t, "Le Tout Miséricordieux", *first.Meaning["fr"])
	assert.Equal(t, "desc en", *first.Description["en"])
	fr, ok := first.Description["fr"]
	assert.True(t, ok)
	assert.Nil(t, fr)
	require.NotNil(t, first.Found)
	assert.Equal(t, []int64{surahID*1000 + 1, surahID*1000 + 2}, env.repo.links[env.repo.nameIDs[1]])

	second := env.repo.names[2]
	assert.Equal(t, "Ar-Rahim", second.Latine)
	assert.Len(t, second.Meaning, 1)
	assert.Nil(t, second.Found)
	_, linked := env.repo.links[env.repo.nameIDs[2]]
	assert.False(t, linked)
	env.requireNoTempFiles(t)
}

func TestAsmaulHusnaDegradesWithoutEnrichment(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/base.json": asmaBase})
	a, err := NewAsmaulHusna(config.SourceConfig{URLs: []string{srv.URL + "/base.json", srv.URL + "/gone.json"}}, env.deps)
	require.NoError(t, err)

	res, err := a.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
	assert.Equal(t, "Ar-Rahman", env.repo.names[1].Latine)
	assert.Empty(t, env.repo.links)
	env.requireNoTempFiles(t)
}

func TestAsmaulHusnaBaseFailureIsFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/extra.json": asmaEnrichment})
	a, err := NewAsmaulHusna(config.SourceConfig{URLs: []string{srv.URL + "/base.json", srv.URL + "/extra.json"}}, env.deps)
	require.NoError(t, err)

	_, err = a.Import(context.Background())
	var dlErr *download.Error
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, Failed, a.State())
	env.requireNoTempFiles(t)
}

func TestAsmaulHusnaEmptyBaseIsMalformed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := payloadServer(t, map[string]string{"/base.json": `{"data":[]}`})
	a, err := NewAsmaulHusna(config.SourceConfig{URL: srv.URL + "/base.json"}, env.deps)
	require.NoError(t, err)

	_, err = a.Import(context.Background())
	var malformed *MalformedPayloadError
	require.ErrorAs(t, err, &malformed)
}

func TestBuildSelectsSourcesInRunOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	cfg := config.Config{Sources: map[string]config.SourceConfig{
		config.SourceQuran:  {Enabled: true, URL: "http://example/quran.json"},
		config.SourceOJK:    {Enabled: true, URL: "http://example/ojk.json"},
		config.SourceHadith: {Enabled: false},
	}}

	importers, err := Build(cfg, []string{config.SourceOJK, config.SourceQuran}, env.deps)
	require.NoError(t, err)
	require.Len(t, importers, 2)
	assert.Equal(t, config.SourceQuran, importers[0].Source())
	assert.Equal(t, config.SourceOJK, importers[1].Source())
	assert.Equal(t, Idle, importers[0].State())

	_, err = Build(cfg, []string{"bible"}, env.deps)
	require.Error(t, err)

	importers, err = Build(cfg, nil, env.deps)
	require.NoError(t, err)
	require.Len(t, importers, 4)
	assert.Equal(t, config.SourceSwiftGlobal, importers[2].Source())
	assert.Equal(t, Failed, importers[2].State())
	_, err = importers[2].Import(context.Background())
	require.ErrorContains(t, err, "url is required")

	_, err = Build(cfg, nil, Deps{Fetcher: env.deps.Fetcher})
	require.ErrorContains(t, err, "transaction runner is required")

	_, err = New(config.SourceQuran, config.SourceConfig{URL: "http://x"}, Deps{Fetcher: env.deps.Fetcher, Runner: env.runner, Repo: env.repo})
	require.NoError(t, err)
}

func TestBuildFromDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	importers, err := Build(cfg, nil, newTestEnv(t).deps)
	require.NoError(t, err)
	require.Len(t, importers, len(config.SourceNames()))
	for _, imp := range importers {
		assert.Equal(t, Idle, imp.State(), imp.Source())
	}
	asma, ok := importers[4].(*AsmaulHusna)
	require.True(t, ok)
	assert.NotEmpty(t, asma.baseURL)
	assert.NotEmpty(t, asma.enrichmentURL)
}
