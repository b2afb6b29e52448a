package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
)

type hadithPayload struct {
	Hadiths []rawHadithBook `json:"hadiths"`
}

type rawHadithBook struct {
	ID           flexString  `json:"id"`
	Name         flexString  `json:"name"`
	TotalHadiths flexInt     `json:"total_hadiths"`
	Hadiths      []rawHadith `json:"hadiths"`
}

type rawHadith struct {
	Number      flexInt    `json:"number"`
	Arabic      flexString `json:"arabic"`
	Translation flexString `json:"translation"`
}

// Hadith imports hadith books and their narrations.
type Hadith struct {
	*base
	url    string
	sha256 string
}

// NewHadith builds the hadith importer.
func NewHadith(src config.SourceConfig, deps Deps) (*Hadith, error) {
	b, err := newBase(config.SourceHadith, deps)
	if err != nil {
		return nil, err
	}
	if src.URL == "" {
		return nil, fmt.Errorf("%s importer: url is required", config.SourceHadith)
	}
	return &Hadith{base: b, url: src.URL, sha256: src.SHA256}, nil
}

// Import upserts all books, then every book's hadiths.
func (h *Hadith) Import(ctx context.Context) (batch.Result, error) {
	var res batch.Result
	artifact, err := h.fetch(ctx, h.url, h.sha256)
	if err != nil {
		return res, h.fail(err)
	}
	defer artifact.Remove() //nolint:errcheck // best-effort cleanup

	h.transition(Parsing, nil)
	var payload hadithPayload
	if err := h.decode(artifact, &payload); err != nil {
		return res, h.fail(err)
	}
	if len(payload.Hadiths) == 0 {
		return res, h.fail(&MalformedPayloadError{Source: h.source, Key: "hadiths"})
	}

	h.transition(Transforming, nil)
	books, hadiths, rejected, merged := h.transform(payload.Hadiths)
	res.Rejected += rejected
	res.Merged += merged
	payload.Hadiths = nil

	part, err := process(ctx, h.base, "hadith.books", books, h.deps.Repo.UpsertHadithBooks)
	res.Add(part)
	if err != nil {
		return res, h.fail(err)
	}
	part, err = process(ctx, h.base, "hadith.hadiths", hadiths, h.deps.Repo.UpsertHadiths)
	res.Add(part)
	if err != nil {
		return res, h.fail(err)
	}

	h.transition(Completed, nil)
	h.logger.Info("hadith import completed",
		zap.Int("books", len(books)),
		zap.Int("hadiths", len(hadiths)),
		zap.Object("result", res),
	)
	return res, nil
}

func (h *Hadith) transform(raw []rawHadithBook) ([]dataset.HadithBook, []dataset.Hadith, int, int) {
	rejected := 0
	books := make([]dataset.HadithBook, 0, len(raw))
	var hadiths []dataset.Hadith
	for _, rb := range raw {
		var missing []string
		if !rb.ID.Present() {
			missing = append(missing, "id")
		}
		if !rb.Name.Present() {
			missing = append(missing, "name")
		}
		if !rb.TotalHadiths.Set {
			missing = append(missing, "total_hadiths")
		}
		if len(missing) > 0 {
			h.reject("book", describe(rb.withoutHadiths()), missing...)
			rejected += 1 + len(rb.Hadiths)
			continue
		}
		books = append(books, dataset.HadithBook{
			ID:           rb.ID.Value,
			Name:         rb.Name.Value,
			TotalHadiths: int(rb.TotalHadiths.Value),
		})
		if len(rb.Hadiths) == 0 {
			h.logger.Warn("no hadiths found for book", zap.String("book", rb.Name.Value))
		}
		for _, rh := range rb.Hadiths {
			var hm []string
			if !rh.Number.Present() {
				hm = append(hm, "number")
			}
			if !rh.Arabic.Present() {
				hm = append(hm, "arabic")
			}
			if !rh.Translation.Present() {
				hm = append(hm, "translation")
			}
			if len(hm) > 0 {
				h.reject("hadith", "book "+rb.ID.Value+" "+describe(rh), hm...)
				rejected++
				continue
			}
			hadiths = append(hadiths, dataset.Hadith{
				BookID:      rb.ID.Value,
				Number:      int(rh.Number.Value),
				Arabic:      rh.Arabic.Value,
				Translation: rh.Translation.Value,
			})
		}
	}
	books, mergedBooks := collapse(h.base, "book", books, func(b dataset.HadithBook) string { return b.ID })
	type hadithKey struct {
		book   string
		number int
	}
	hadiths, mergedHadiths := collapse(h.base, "hadith", hadiths, func(x dataset.Hadith) hadithKey { return hadithKey{x.BookID, x.Number} })
	return books, hadiths, rejected, mergedBooks + mergedHadiths
}

func (rb rawHadithBook) withoutHadiths() rawHadithBook {
	rb.Hadiths = nil
	return rb
}
