package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

var (
	surahUpsert = upsertStatement{
		table: "quran_surahs",
		columns: []string{
			"number", "name", "name_latin", "number_of_verses",
			"place", "meaning", "description", "audio_full",
		},
		conflict: []string{"number"},
		update: []string{
			"name", "name_latin", "number_of_verses",
			"place", "meaning", "description", "audio_full",
		},
		returning: "id",
	}
	verseUpsert = upsertStatement{
		table: "quran_verses",
		columns: []string{
			"surah_id", "surah_number", "verse_number",
			"arabic_text", "latin_text", "translation", "audio",
		},
		conflict: []string{"surah_id", "verse_number"},
		update:   []string{"surah_number", "arabic_text", "latin_text", "translation", "audio"},
	}
	hadithBookUpsert = upsertStatement{
		table:    "hadith_books",
		columns:  []string{"id", "name", "total_hadiths"},
		conflict: []string{"id"},
		update:   []string{"name", "total_hadiths"},
	}
	hadithUpsert = upsertStatement{
		table:    "hadiths",
		columns:  []string{"book_id", "number", "arabic", "translation"},
		conflict: []string{"book_id", "number"},
		update:   []string{"arabic", "translation"},
	}
	ojkIllegalUpsert = upsertStatement{
		table: "ojk_illegals",
		columns: []string{
			"id", "name", "alias", "address", "web", "email", "phone",
			"entity_type", "activity_type", "input_date", "description",
		},
		conflict: []string{"id"},
		update: []string{
			"name", "alias", "address", "web", "email", "phone",
			"entity_type", "activity_type", "input_date", "description",
		},
	}
	ojkAppUpsert = upsertStatement{
		table:    "ojk_apps",
		columns:  []string{"id", "name", "url", "owner"},
		conflict: []string{"id"},
		update:   []string{"name", "url", "owner"},
	}
	ojkProductUpsert = upsertStatement{
		table:    "ojk_products",
		columns:  []string{"id", "name", "management", "custodian", "type"},
		conflict: []string{"id"},
		update:   []string{"name", "management", "custodian", "type"},
	}
	bankCountryUpsert = upsertStatement{
		table:    "bank_countries",
		columns:  []string{"code", "name"},
		conflict: []string{"code"},
		update:   []string{"name"},
	}
	bankCityUpsert = upsertStatement{
		table:    "bank_cities",
		columns:  []string{"country_code", "name"},
		conflict: []string{"country_code", "name"},
	}
	bankUpsert = upsertStatement{
		table:    "banks",
		columns:  []string{"city_id", "name", "branch", "swift_code"},
		conflict: []string{"swift_code"},
		update:   []string{"city_id", "name", "branch"},
	}
	asmaulHusnaUpsert = upsertStatement{
		table:     "asmaul_husnas",
		columns:   []string{"number", "arabic", "latine", "meaning", "description", "found"},
		conflict:  []string{"number"},
		update:    []string{"arabic", "latine", "meaning", "description", "found"},
		returning: "id",
	}
)

const (
	cityIDsQuery = `SELECT id, country_code, name FROM bank_cities WHERE country_code = ANY($1)`
	verseIDsQuery = `SELECT v.id, v.surah_number, v.verse_number
FROM quran_verses v
JOIN unnest($1::int[], $2::int[]) AS r(surah_number, verse_number)
  ON v.surah_number = r.surah_number AND v.verse_number = r.verse_number`
	unlinkAsmaulHusnaVerses = `DELETE FROM asmaul_husna_verse
WHERE asmaul_husna_id = $1 AND NOT (quran_verse_id = ANY($2))`
	linkAsmaulHusnaVerses = `INSERT INTO asmaul_husna_verse (asmaul_husna_id, quran_verse_id, created_at, updated_at)
SELECT $1, verse_id, now(), now() FROM unnest($2::bigint[]) AS verse_id
ON CONFLICT (asmaul_husna_id, quran_verse_id) DO NOTHING`
)

// DatasetRepository writes importer rows inside caller-owned transactions.
type DatasetRepository struct{}

// NewDatasetRepository validates the statement catalog and returns a repository.
func NewDatasetRepository() (*DatasetRepository, error) {
	for _, stmt := range []upsertStatement{
		surahUpsert, verseUpsert, hadithBookUpsert, hadithUpsert,
		ojkIllegalUpsert, ojkAppUpsert, ojkProductUpsert,
		bankCountryUpsert, bankCityUpsert, bankUpsert, asmaulHusnaUpsert,
	} {
		if err := stmt.validate(); err != nil {
			return nil, err
		}
	}
	return &DatasetRepository{}, nil
}

// UpsertSurah writes one surah and returns its row id.
func (r *DatasetRepository) UpsertSurah(ctx context.Context, tx store.Tx, s dataset.Surah) (int64, error) {
	return upsertReturningID(ctx, tx, surahUpsert, []any{
		s.Number, s.Name, s.NameLatin, s.NumberOfVerses,
		s.Place, s.Meaning, s.Description, jsonOrNull(s.AudioFull),
	})
}

// UpsertVerses writes verses keyed by (surah_id, verse_number).
func (r *DatasetRepository) UpsertVerses(ctx context.Context, tx store.Tx, verses []dataset.Verse) error {
	return execUpsert(ctx, tx, verseUpsert, verses, func(v dataset.Verse) []any {
		return []any{
			v.SurahID, v.SurahNumber, v.VerseNumber,
			v.ArabicText, v.LatinText, v.Translation, jsonOrNull(v.Audio),
		}
	})
}

// UpsertHadithBooks writes hadith books keyed by id.
func (r *DatasetRepository) UpsertHadithBooks(ctx context.Context, tx store.Tx, books []dataset.HadithBook) error {
	return execUpsert(ctx, tx, hadithBookUpsert, books, func(b dataset.HadithBook) []any {
		return []any{b.ID, b.Name, b.TotalHadiths}
	})
}

// UpsertHadiths writes hadiths keyed by (book_id, number).
func (r *DatasetRepository) UpsertHadiths(ctx context.Context, tx store.Tx, hadiths []dataset.Hadith) error {
	return execUpsert(ctx, tx, hadithUpsert, hadiths, func(h dataset.Hadith) []any {
		return []any{h.BookID, h.Number, h.Arabic, h.Translation}
	})
}

// UpsertOJKIllegals writes illegal-entity rows keyed by id.
func (r *DatasetRepository) UpsertOJKIllegals(ctx context.Context, tx store.Tx, rows []dataset.OJKIllegal) error {
	return execUpsert(ctx, tx, ojkIllegalUpsert, rows, func(o dataset.OJKIllegal) []any {
		return []any{
			o.ID, o.Name,
			jsonOrNull(o.Alias), jsonOrNull(o.Address), jsonOrNull(o.Web),
			jsonOrNull(o.Email), jsonOrNull(o.Phone),
			o.EntityType, jsonOrNull(o.ActivityType), o.InputDate, o.Description,
		}
	})
}

// UpsertOJKApps writes application rows keyed by id.
func (r *DatasetRepository) UpsertOJKApps(ctx context.Context, tx store.Tx, rows []dataset.OJKApp) error {
	return execUpsert(ctx, tx, ojkAppUpsert, rows, func(o dataset.OJKApp) []any {
		return []any{o.ID, o.Name, o.URL, o.Owner}
	})
}

// UpsertOJKProducts writes product rows keyed by id.
func (r *DatasetRepository) UpsertOJKProducts(ctx context.Context, tx store.Tx, rows []dataset.OJKProduct) error {
	return execUpsert(ctx, tx, ojkProductUpsert, rows, func(o dataset.OJKProduct) []any {
		return []any{o.ID, o.Name, o.Management, o.Custodian, o.Type}
	})
}

// UpsertBankCountries writes countries keyed by code.
func (r *DatasetRepository) UpsertBankCountries(ctx context.Context, tx store.Tx, rows []dataset.BankCountry) error {
	return execUpsert(ctx, tx, bankCountryUpsert, rows, func(c dataset.BankCountry) []any {
		return []any{c.Code, c.Name}
	})
}

// UpsertBankCities writes cities keyed by (country_code, name).
func (r *DatasetRepository) UpsertBankCities(ctx context.Context, tx store.Tx, rows []dataset.BankCity) error {
	return execUpsert(ctx, tx, bankCityUpsert, rows, func(c dataset.BankCity) []any {
		return []any{c.CountryCode, c.Name}
	})
}

// UpsertBanks writes banks keyed by swift_code.
func (r *DatasetRepository) UpsertBanks(ctx context.Context, tx store.Tx, rows []dataset.Bank) error {
	return execUpsert(ctx, tx, bankUpsert, rows, func(b dataset.Bank) []any {
		return []any{b.CityID, b.Name, b.Branch, b.SwiftCode}
	})
}

// CityIDs resolves city ids for the given countries.
func (r *DatasetRepository) CityIDs(
	ctx context.Context,
	tx store.Tx,
	countryCodes []string,
) (map[dataset.CityKey]int64, error) {
	out := make(map[dataset.CityKey]int64)
	if len(countryCodes) == 0 {
		return out, nil
	}
	rows, err := tx.Query(ctx, cityIDsQuery, countryCodes)
	if err != nil {
		return nil, fmt.Errorf("query bank cities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  int64
			key dataset.CityKey
		)
		if err := rows.Scan(&id, &key.CountryCode, &key.Name); err != nil {
			return nil, fmt.Errorf("scan bank city: %w", err)
		}
		out[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank cities: %w", err)
	}
	return out, nil
}

// UpsertAsmaulHusna writes one name and returns its row id.
func (r *DatasetRepository) UpsertAsmaulHusna(ctx context.Context, tx store.Tx, a dataset.AsmaulHusna) (int64, error) {
	meaning, err := json.Marshal(nonNilMap(a.Meaning))
	if err != nil {
		return 0, fmt.Errorf("marshal meaning: %w", err)
	}
	description, err := json.Marshal(nonNilMap(a.Description))
	if err != nil {
		return 0, fmt.Errorf("marshal description: %w", err)
	}
	return upsertReturningID(ctx, tx, asmaulHusnaUpsert, []any{
		a.Number, a.Arabic, a.Latine, json.RawMessage(meaning), json.RawMessage(description), a.Found,
	})
}

// VerseIDs resolves verse references to quran_verses ids. Unknown references
// are absent from the result.
func (r *DatasetRepository) VerseIDs(
	ctx context.Context,
	tx store.Tx,
	refs []dataset.VerseRef,
) (map[dataset.VerseRef]int64, error) {
	out := make(map[dataset.VerseRef]int64, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	surahs := make([]int32, len(refs))
	verses := make([]int32, len(refs))
	for i, ref := range refs {
		surahs[i] = int32(ref.Surah)
		verses[i] = int32(ref.Verse)
	}
	rows, err := tx.Query(ctx, verseIDsQuery, surahs, verses)
	if err != nil {
		return nil, fmt.Errorf("query verse ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  int64
			ref dataset.VerseRef
		)
		if err := rows.Scan(&id, &ref.Surah, &ref.Verse); err != nil {
			return nil, fmt.Errorf("scan verse id: %w", err)
		}
		out[ref] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verse ids: %w", err)
	}
	return out, nil
}

// SyncAsmaulHusnaVerses makes the verse links of one name equal to verseIDs.
func (r *DatasetRepository) SyncAsmaulHusnaVerses(
	ctx context.Context,
	tx store.Tx,
	asmaulHusnaID int64,
	verseIDs []int64,
) error {
	if verseIDs == nil {
		verseIDs = []int64{}
	}
	if _, err := tx.Exec(ctx, unlinkAsmaulHusnaVerses, asmaulHusnaID, verseIDs); err != nil {
		return fmt.Errorf("unlink verses: %w", err)
	}
	if len(verseIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, linkAsmaulHusnaVerses, asmaulHusnaID, verseIDs); err != nil {
		return fmt.Errorf("link verses: %w", err)
	}
	return nil
}

func execUpsert[T any](
	ctx context.Context,
	tx store.Tx,
	stmt upsertStatement,
	records []T,
	row func(T) []any,
) error {
	if len(records) == 0 {
		return nil
	}
	values := make([][]any, len(records))
	for i, rec := range records {
		values[i] = row(rec)
	}
	// Wide chunks are split so no statement exceeds the bind parameter limit.
	step := stmt.maxRows()
	for start := 0; start < len(values); start += step {
		part := values[start:min(start+step, len(values))]
		args, err := stmt.args(part)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, stmt.sql(len(part)), args...); err != nil {
			return fmt.Errorf("upsert %s: %w", stmt.table, err)
		}
	}
	return nil
}

func upsertReturningID(ctx context.Context, tx store.Tx, stmt upsertStatement, row []any) (int64, error) {
	args, err := stmt.args([][]any{row})
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, stmt.sql(1), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", stmt.table, err)
	}
	return id, nil
}

// jsonOrNull maps an empty document to SQL NULL.
func jsonOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nonNilMap(m map[string]*string) map[string]*string {
	if m == nil {
		return map[string]*string{}
	}
	return m
}
