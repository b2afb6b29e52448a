package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

type quranPayload struct {
	Quran []rawSurah `json:"quran"`
}

type rawSurah struct {
	Number         flexInt         `json:"number"`
	Name           flexString      `json:"name"`
	NameLatin      flexString      `json:"name_latin"`
	NumberOfVerses flexInt         `json:"number_of_verses"`
	Place          flexString      `json:"place"`
	Meaning        flexString      `json:"meaning"`
	Description    flexString      `json:"description"`
	AudioFull      json.RawMessage `json:"audio_full"`
	Verses         []rawVerse      `json:"verses"`
}

type rawVerse struct {
	VerseNumber flexInt         `json:"verse_number"`
	ArabicText  flexString      `json:"arabic_text"`
	LatinText   flexString      `json:"latin_text"`
	Translation flexString      `json:"translation"`
	Audio       json.RawMessage `json:"audio"`
}

type surahRows struct {
	surah  dataset.Surah
	verses []dataset.Verse
}

// Quran imports surahs and their verses.
type Quran struct {
	*base
	url    string
	sha256 string
}

// NewQuran builds the quran importer.
func NewQuran(src config.SourceConfig, deps Deps) (*Quran, error) {
	b, err := newBase(config.SourceQuran, deps)
	if err != nil {
		return nil, err
	}
	if src.URL == "" {
		return nil, fmt.Errorf("%s importer: url is required", config.SourceQuran)
	}
	return &Quran{base: b, url: src.URL, sha256: src.SHA256}, nil
}

// Import downloads the payload and upserts every surah followed by its verses.
func (q *Quran) Import(ctx context.Context) (batch.Result, error) {
	var res batch.Result
	artifact, err := q.fetch(ctx, q.url, q.sha256)
	if err != nil {
		return res, q.fail(err)
	}
	defer artifact.Remove() //nolint:errcheck // best-effort cleanup

	q.transition(Parsing, nil)
	var payload quranPayload
	if err := q.decode(artifact, &payload); err != nil {
		return res, q.fail(err)
	}
	if len(payload.Quran) == 0 {
		return res, q.fail(&MalformedPayloadError{Source: q.source, Key: "quran"})
	}

	q.transition(Transforming, nil)
	surahs, rejected, merged := q.transform(payload.Quran)
	res.Rejected += rejected
	res.Merged += merged
	payload.Quran = nil

	for _, s := range surahs {
		if err := ctx.Err(); err != nil {
			return res, q.fail(fmt.Errorf("quran: %w", err))
		}
		part, err := q.importSurah(ctx, s)
		res.Add(part)
		if err != nil {
			return res, q.fail(err)
		}
	}

	q.transition(Completed, nil)
	q.logger.Info("quran import completed", zap.Int("surahs", len(surahs)), zap.Object("result", res))
	return res, nil
}

func (q *Quran) transform(raw []rawSurah) ([]surahRows, int, int) {
	rejected, merged := 0, 0
	out := make([]surahRows, 0, len(raw))
	for _, rs := range raw {
		var missing []string
		if !rs.Number.Present() {
			missing = append(missing, "number")
		}
		if !rs.Name.Present() {
			missing = append(missing, "name")
		}
		if !rs.NameLatin.Present() {
			missing = append(missing, "name_latin")
		}
		if len(missing) > 0 {
			q.reject("surah", describe(rs), missing...)
			rejected += 1 + len(rs.Verses)
			continue
		}

		surah := dataset.Surah{
			Number:         int(rs.Number.Value),
			Name:           rs.Name.Value,
			NameLatin:      rs.NameLatin.Value,
			NumberOfVerses: int(rs.NumberOfVerses.Value),
			Place:          rs.Place.Value,
			Meaning:        rs.Meaning.Value,
			Description:    rs.Description.Value,
			AudioFull:      jsonValue(rs.AudioFull),
		}
		verses := make([]dataset.Verse, 0, len(rs.Verses))
		for _, rv := range rs.Verses {
			var vm []string
			if !rv.VerseNumber.Present() {
				vm = append(vm, "verse_number")
			}
			if !rv.ArabicText.Present() {
				vm = append(vm, "arabic_text")
			}
			if !rv.Translation.Present() {
				vm = append(vm, "translation")
			}
			if len(vm) > 0 {
				q.reject("verse", "surah "+strconv.Itoa(surah.Number)+" "+describe(rv), vm...)
				rejected++
				continue
			}
			verses = append(verses, dataset.Verse{
				SurahNumber: surah.Number,
				VerseNumber: int(rv.VerseNumber.Value),
				ArabicText:  rv.ArabicText.Value,
				LatinText:   rv.LatinText.Value,
				Translation: rv.Translation.Value,
				Audio:       jsonValue(rv.Audio),
			})
		}
		verses, n := collapse(q.base, "verse", verses, func(v dataset.Verse) int { return v.VerseNumber })
		merged += n
		out = append(out, surahRows{surah: surah, verses: verses})
	}
	// A repeated surah replaces the earlier one along with its verses.
	before := countRows(out)
	out, _ = collapse(q.base, "surah", out, func(s surahRows) int { return s.surah.Number })
	return out, rejected, merged + before - countRows(out)
}

func countRows(surahs []surahRows) int {
	n := len(surahs)
	for _, s := range surahs {
		n += len(s.verses)
	}
	return n
}

func (q *Quran) importSurah(ctx context.Context, s surahRows) (batch.Result, error) {
	var res batch.Result
	q.transition(ChunkUpserting, nil)

	var surahID int64
	err := q.writeOne(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := q.deps.Repo.UpsertSurah(ctx, tx, s.surah)
		surahID = id
		return err
	})
	if err != nil {
		if store.IsConnectionError(err) {
			return res, fmt.Errorf("upsert surah %d: %w", s.surah.Number, err)
		}
		q.logger.Error("surah upsert failed",
			zap.String("record_id", s.surah.RecordID()),
			zap.Error(&batch.RecordWriteError{Label: q.source, RecordID: s.surah.RecordID(), Err: err}),
		)
		res.Failed += 1 + len(s.verses)
		return res, nil
	}
	res.Committed++

	if len(s.verses) == 0 {
		q.logger.Warn("no verses found for surah", zap.String("surah", s.surah.NameLatin))
		return res, nil
	}
	for i := range s.verses {
		s.verses[i].SurahID = surahID
	}

	part, err := batch.Process(ctx, q.processor, "quran.verses", s.verses, q.chunkSize(), q.deps.Repo.UpsertVerses, nil)
	res.Add(part)
	if err != nil {
		return res, err
	}
	q.logger.Info("processed surah",
		zap.String("surah", s.surah.NameLatin),
		zap.Int("verses", len(s.verses)),
	)
	return res, nil
}
