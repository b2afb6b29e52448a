package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/download"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

type asmaBasePayload struct {
	Data []rawAsmaBase `json:"data"`
}

type rawAsmaBase struct {
	No     flexInt    `json:"no"`
	Arab   flexString `json:"arab"`
	Latine flexString `json:"latine"`
	Arti   flexString `json:"arti"`
}

type asmaEnrichmentPayload struct {
	Data []rawAsmaEnrichment `json:"data"`
}

type rawAsmaEnrichment struct {
	Number          flexInt       `json:"number"`
	Transliteration flexString    `json:"transliteration"`
	EN              *rawAsmaLocal `json:"en"`
	FR              *rawAsmaLocal `json:"fr"`
	Found           flexString    `json:"found"`
}

type rawAsmaLocal struct {
	Meaning flexString `json:"meaning"`
	Desc    flexString `json:"desc"`
}

// AsmaulHusna imports the names from a base document, enriched with English
// and French translations and quran verse references from a second document.
type AsmaulHusna struct {
	*base
	baseURL       string
	enrichmentURL string
}

// NewAsmaulHusna builds the asmaul_husna importer. URLs[0] (or URL) is the base
// document and URLs[1] the optional enrichment document.
func NewAsmaulHusna(src config.SourceConfig, deps Deps) (*AsmaulHusna, error) {
	b, err := newBase(config.SourceAsmaulHusna, deps)
	if err != nil {
		return nil, err
	}
	a := &AsmaulHusna{base: b}
	switch {
	case len(src.URLs) > 0:
		a.baseURL = src.URLs[0]
		if len(src.URLs) > 1 {
			a.enrichmentURL = src.URLs[1]
		}
	default:
		a.baseURL = src.URL
	}
	if a.baseURL == "" {
		return nil, fmt.Errorf("%s importer: base url is required", config.SourceAsmaulHusna)
	}
	return a, nil
}

// Import merges both documents by number, upserts each name and syncs its
// verse links.
func (a *AsmaulHusna) Import(ctx context.Context) (batch.Result, error) {
	var res batch.Result
	baseArtifact, enrichArtifact, err := a.download(ctx)
	if err != nil {
		return res, a.fail(err)
	}
	defer baseArtifact.Remove()   //nolint:errcheck // best-effort cleanup
	defer enrichArtifact.Remove() //nolint:errcheck // nil-safe

	a.transition(Parsing, nil)
	var basePayload asmaBasePayload
	if err := a.decode(baseArtifact, &basePayload); err != nil {
		return res, a.fail(err)
	}
	if len(basePayload.Data) == 0 {
		return res, a.fail(&MalformedPayloadError{Source: a.source, Key: "data"})
	}
	enrichment := map[int64]rawAsmaEnrichment{}
	if enrichArtifact != nil {
		var extra asmaEnrichmentPayload
		if err := a.decode(enrichArtifact, &extra); err != nil {
			a.logger.Warn("enrichment payload unreadable; importing base data only", zap.Error(err))
		}
		for _, e := range extra.Data {
			if e.Number.Set {
				enrichment[e.Number.Value] = e
			}
		}
	}

	a.transition(Transforming, nil)
	names, rejected := a.merge(basePayload.Data, enrichment)
	res.Rejected += rejected
	names, res.Merged = collapse(a.base, "name", names, func(n dataset.AsmaulHusna) int { return n.Number })

	part, err := process(ctx, a.base, "asmaul_husna.names", names, a.upsertNames)
	res.Add(part)
	if err != nil {
		return res, a.fail(err)
	}

	a.transition(Completed, nil)
	a.logger.Info("asmaul_husna import completed", zap.Int("names", len(names)), zap.Object("result", res))
	return res, nil
}

// download fetches both documents. Only a base failure is fatal.
func (a *AsmaulHusna) download(ctx context.Context) (*download.Artifact, *download.Artifact, error) {
	if a.enrichmentURL == "" {
		artifact, err := a.fetch(ctx, a.baseURL, "")
		return artifact, nil, err
	}

	a.transition(Downloading, nil)
	a.logger.Info("downloading data",
		zap.String("base_url", a.baseURL),
		zap.String("enrichment_url", a.enrichmentURL),
	)
	parallelism := a.deps.Parallelism
	if parallelism <= 0 {
		parallelism = 2
	}
	results := a.deps.Fetcher.FetchMany(ctx, []string{a.baseURL, a.enrichmentURL}, a.options(""), parallelism)
	baseResult, enrichResult := results[0], results[1]
	if baseResult.Err != nil {
		download.RemoveAll(results)
		return nil, nil, baseResult.Err
	}
	a.archive(ctx, baseResult.Artifact)
	if enrichResult.Err != nil {
		a.logger.Warn("enrichment download failed; importing base data only", zap.Error(enrichResult.Err))
		return baseResult.Artifact, nil, nil
	}
	a.archive(ctx, enrichResult.Artifact)
	return baseResult.Artifact, enrichResult.Artifact, nil
}

func (a *AsmaulHusna) merge(items []rawAsmaBase, enrichment map[int64]rawAsmaEnrichment) ([]dataset.AsmaulHusna, int) {
	rejected := 0
	out := make([]dataset.AsmaulHusna, 0, len(items))
	for _, item := range items {
		var missing []string
		if !item.No.Present() {
			missing = append(missing, "no")
		}
		if !item.Arab.Present() {
			missing = append(missing, "arab")
		}
		if len(missing) > 0 {
			a.reject("name", describe(item), missing...)
			rejected++
			continue
		}

		name := dataset.AsmaulHusna{
			Number:      int(item.No.Value),
			Arabic:      item.Arab.Value,
			Latine:      item.Latine.Value,
			Meaning:     map[string]*string{"id": item.Arti.Ptr()},
			Description: map[string]*string{},
		}
		if extra, ok := enrichment[item.No.Value]; ok {
			if extra.Transliteration.Set {
				name.Latine = extra.Transliteration.Value
			}
			if extra.EN != nil {
				name.Meaning["en"] = extra.EN.Meaning.Ptr()
				name.Description["en"] = extra.EN.Desc.Ptr()
			}
			if extra.FR != nil {
				name.Meaning["fr"] = extra.FR.Meaning.Ptr()
				name.Description["fr"] = extra.FR.Desc.Ptr()
			}
			name.Found = extra.Found.Ptr()
		}
		out = append(out, name)
	}
	return out, rejected
}

// upsertNames writes each name of the chunk and replaces its verse links.
func (a *AsmaulHusna) upsertNames(ctx context.Context, tx store.Tx, names []dataset.AsmaulHusna) error {
	for _, name := range names {
		id, err := a.deps.Repo.UpsertAsmaulHusna(ctx, tx, name)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", name.RecordID(), err)
		}
		if name.Found == nil {
			continue
		}
		if err := a.linkVerses(ctx, tx, id, name); err != nil {
			return err
		}
	}
	return nil
}

func (a *AsmaulHusna) linkVerses(ctx context.Context, tx store.Tx, id int64, name dataset.AsmaulHusna) error {
	refs := parseVerseRefs(*name.Found)
	resolved, err := a.deps.Repo.VerseIDs(ctx, tx, refs)
	if err != nil {
		return fmt.Errorf("resolve verses for %s: %w", name.RecordID(), err)
	}
	verseIDs := make([]int64, 0, len(refs))
	for _, ref := range refs {
		verseID, ok := resolved[ref]
		if !ok {
			a.logger.Warn("verse not found", zap.Int("number", name.Number), zap.Stringer("verse", ref))
			continue
		}
		verseIDs = append(verseIDs, verseID)
	}
	if err := a.deps.Repo.SyncAsmaulHusnaVerses(ctx, tx, id, verseIDs); err != nil {
		return fmt.Errorf("sync verses for %s: %w", name.RecordID(), err)
	}
	return nil
}
